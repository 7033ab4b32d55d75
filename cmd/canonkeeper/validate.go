package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"canonkeeper/internal/validate"
)

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Re-check everything in canon against the schema and rules",
		RunE:  runValidate,
	}
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, schema, err := loadProject()
	if err != nil {
		return err
	}

	canon, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer canon.Close(ctx)

	report, err := validate.Audit(ctx, schema, canon)
	if err != nil {
		return err
	}

	var errorMessages []validate.Message
	var warnMessages []validate.Message
	for _, msg := range report.Messages {
		switch msg.Severity {
		case validate.SeverityError:
			errorMessages = append(errorMessages, msg)
		case validate.SeverityWarning:
			warnMessages = append(warnMessages, msg)
		}
	}

	if len(errorMessages) == 0 && len(warnMessages) == 0 {
		fmt.Fprintln(os.Stdout, "No issues found.")
		return nil
	}

	if len(errorMessages) > 0 {
		fmt.Fprintf(os.Stdout, "Errors (%d):\n", len(errorMessages))
		printMessages(errorMessages)
	}
	if len(warnMessages) > 0 {
		if len(errorMessages) > 0 {
			fmt.Fprintln(os.Stdout, "")
		}
		fmt.Fprintf(os.Stdout, "Warnings (%d):\n", len(warnMessages))
		printMessages(warnMessages)
	}

	if len(errorMessages) > 0 {
		return fmt.Errorf("validation found errors")
	}
	return nil
}

func printMessages(messages []validate.Message) {
	for _, msg := range messages {
		location := ""
		if len(msg.EntityIDs) > 0 {
			location = msg.EntityIDs[0] + ": "
		}
		fmt.Fprintf(os.Stdout, "  - %s%s (%s)\n", location, msg.Text, msg.Code)
	}
}
