package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	input "github.com/tcnksm/go-input"

	"github.com/go-go-golems/mangiafuoco/pkg/config"
)

// newKeysCommand interactively collects provider credentials and writes
// them to a .env file, merging with whatever the file already holds.
func newKeysCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Store provider API keys in a .env file",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := map[string]string{}
			if existing, err := godotenv.Read(path); err == nil {
				env = existing
			} else if !os.IsNotExist(err) {
				return err
			}

			ui := &input.UI{
				Writer: os.Stdout,
				Reader: os.Stdin,
			}

			for _, prompt := range []struct {
				env   string
				query string
			}{
				{"OPENROUTER_API_KEYS", "OpenRouter API keys (comma separated, empty to keep current)"},
				{"GEMINI_API_KEYS", "Gemini API keys (comma separated, empty to keep current)"},
			} {
				answer, err := ui.Ask(prompt.query, &input.Options{
					Default:     "",
					Required:    false,
					HideOrder:   true,
					HideDefault: true,
				})
				if err != nil {
					return err
				}
				if answer == "" {
					continue
				}
				keys := config.CleanAPIKeys(answer)
				if len(keys) == 0 {
					fmt.Fprintf(os.Stderr, "no usable keys in input for %s, skipping\n", prompt.env)
					continue
				}
				env[prompt.env] = answer
			}

			if err := godotenv.Write(env, path); err != nil {
				return err
			}
			fmt.Println("Credentials written to", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "file", ".env", "Path of the .env file to update")
	return cmd
}
