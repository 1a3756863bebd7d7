package console

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/service"
	"github.com/stemsi/exstem-client/internal/validator"
)

// setup asks for the exam form and creates the exam. Invalid input
// restarts the form after the field messages are shown.
func (c *Console) setup(ctx context.Context) error {
	c.printf("\nCreate an exam\n")
	if info, err := c.svc.AIInfo(ctx); err == nil {
		c.printf("Questions are generated by %s\n", info.ConfiguredModel)
	}

	var req model.CreateExamRequest
	var err error
	ask := func(label string) string {
		if err != nil {
			return ""
		}
		var v string
		v, err = c.readLine(label)
		return v
	}

	req.UserName = ask("Name: ")
	req.UserEmail = ask("Email: ")
	req.Board = model.Board(strings.ToUpper(ask("Board (CBSE, ICSE, WBBSE): ")))
	class := ask("Class (6-12): ")
	req.Subject = ask("Subject: ")
	req.ChapterFocus = ask("Chapter focus (optional): ")
	difficulty := ask("Difficulty (easy, medium, hard, extreme, ultra_extreme) [medium]: ")
	duration := ask("Duration in minutes (optional): ")
	syllabusPath := ask("Syllabus PDF (optional): ")
	if err != nil {
		return err
	}

	req.ClassNum, _ = strconv.Atoi(class)
	req.DifficultyLevel = model.DifficultyMedium
	if difficulty != "" {
		req.DifficultyLevel = model.Difficulty(strings.ToLower(difficulty))
	}
	if duration != "" {
		if n, convErr := strconv.Atoi(duration); convErr == nil {
			req.CustomDurationMinutes = &n
		} else {
			c.printf("[!] Duration must be a number of minutes\n")
			return nil
		}
	}

	var syllabus *service.File
	if syllabusPath != "" {
		files, closeAll, openErr := c.openFiles([]string{syllabusPath})
		if openErr != nil {
			c.report(openErr)
			return nil
		}
		defer closeAll()
		syllabus = &files[0]
	}

	c.printf("Generating exam, this can take a minute...\n")
	_, err = c.svc.CreateExam(ctx, req, syllabus)
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		for _, field := range slices.Sorted(maps.Keys(ve.Fields)) {
			c.printf("  %s: %s\n", field, ve.Fields[field])
		}
		return nil
	}
	c.report(err)
	return nil
}
