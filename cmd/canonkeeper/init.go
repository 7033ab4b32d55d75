package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var worldName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new canonkeeper world",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(worldName) == "" {
				return fmt.Errorf("--name is required")
			}
			return runInit(worldName)
		},
	}
	cmd.Flags().StringVar(&worldName, "name", "", "World name")
	return cmd
}

const starterSchema = `version: 1

entity_types:
  - name: character
    attributes:
      - { name: name, kind: string, required: true }
      - { name: status, kind: enum, values: [alive, dead, unknown] }
      - { name: born, kind: date }
      - { name: home, kind: reference }
      - { name: body, kind: string }
    constraints:
      - { kind: unique, attribute: name, severity: error }
    field_mappings:
      - { field: home, relationship: LOCATED_IN }
  - name: place
    attributes:
      - { name: name, kind: string, required: true }
      - { name: body, kind: string }
    constraints:
      - { kind: unique, attribute: name, severity: error }
  - name: artifact
    attributes:
      - { name: name, kind: string, required: true }
      - { name: body, kind: string }
  - name: faction
    attributes:
      - { name: name, kind: string, required: true }
      - { name: body, kind: string }
    constraints:
      - { kind: unique, attribute: name, severity: warning }
  - name: event
    attributes:
      - { name: name, kind: string, required: true }
      - { name: date, kind: date, required: true }
      - { name: body, kind: string }

relationship_types:
  - name: LOCATED_IN
    source_types: [character, artifact]
    target_types: [place]
    directed: true
  - name: MEMBER_OF
    source_types: [character]
    target_types: [faction]
    directed: true
  - name: RULES
    source_types: [character]
    target_types: [place, faction]
    directed: true
    constraints:
      - { kind: exclusive_target, severity: error }
  - name: CONSEQUENCE_OF
    source_types: [event]
    target_types: [event]
    directed: true
    constraints:
      - { kind: temporal, attribute: date, severity: error }
`

func runInit(worldName string) error {
	configPath := "canonkeeper.yaml"
	schemaPath := "schema.yaml"
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	if _, err := os.Stat(schemaPath); err == nil {
		return fmt.Errorf("%s already exists", schemaPath)
	}

	configContents := fmt.Sprintf("world: %s\nversion: 1\n\ndatabase:\n  dsn: sqlite://canon.db\n\noracle:\n  enabled: true\n  model: gpt-4o-mini\n  timeout_seconds: 20\n\nbackups:\n  dir: ./snapshots\n", worldName)
	if err := os.WriteFile(configPath, []byte(configContents), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	if err := os.WriteFile(schemaPath, []byte(starterSchema), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", schemaPath, err)
	}

	return nil
}
