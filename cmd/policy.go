package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/relaybus/internal/policy"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and author policy documents",
	}
	cmd.AddCommand(policyLintCmd())
	cmd.AddCommand(policyInitCmd())
	return cmd
}

func policyLintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file>",
		Short: "Compile a policy file and print diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read policy file: %w", err)
			}
			p, err := policy.Compile(string(src))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if len(p.Warnings) == 0 {
				fmt.Printf("%s: OK, no diagnostics\n", args[0])
				return nil
			}
			fmt.Printf("%s: %d diagnostic(s)\n", args[0], len(p.Warnings))
			for _, w := range p.Warnings {
				fmt.Println("  -", w)
			}
			return nil
		},
	}
}

// policyInitCmd scaffolds a starter policy document through an
// interactive form, in place of hand-writing the grammar from scratch.
func policyInitCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively scaffold a starter policy file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				roleName       string
				broadcastName  string
				requestName    string
				includeRequest bool
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Role name").
						Description("The first role declared in the policy").
						Value(&roleName).
						Validate(nonEmpty("role name")),
					huh.NewInput().
						Title("Broadcast channel name").
						Value(&broadcastName).
						Validate(nonEmpty("broadcast channel name")),
					huh.NewConfirm().
						Title("Also scaffold a request/response pair?").
						Value(&includeRequest),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("Request/response channel name").
						Value(&requestName).
						Validate(nonEmpty("request channel name")),
				).WithHideFunc(func() bool { return !includeRequest }),
			)

			if err := form.Run(); err != nil {
				return fmt.Errorf("policy init: %w", err)
			}

			doc := renderPolicyDoc(roleName, broadcastName, requestName, includeRequest)
			if outPath == "" {
				fmt.Print(doc)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(doc), 0o644); err != nil {
				return fmt.Errorf("write policy file: %w", err)
			}
			fmt.Printf("wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the scaffolded policy here instead of stdout")
	return cmd
}

func nonEmpty(label string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", label)
		}
		return nil
	}
}

func renderPolicyDoc(role, broadcastChannel, requestChannel string, includeRequest bool) string {
	doc := fmt.Sprintf("role %s\n\nbroadcast %s { message: string }\nallow %s broadcast %s\nallow %s listen %s\n",
		role, broadcastChannel, role, broadcastChannel, role, broadcastChannel)
	if includeRequest {
		doc += fmt.Sprintf("\nrequest %s { query: string }\nresponse %s { answer: string }\nallow %s request %s\nallow %s response %s\n",
			requestChannel, requestChannel, role, requestChannel, role, requestChannel)
	}
	return doc
}
