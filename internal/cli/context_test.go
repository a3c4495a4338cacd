package cli

import (
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var flagRef = regexp.MustCompile(`--([a-z][a-z-]*)`)

// Help text must only reference flags the command actually registers.
func TestContextHelpMentionsOnlyRegisteredFlags(t *testing.T) {
	var walk func(path string, cmd *cobra.Command)
	walk = func(path string, cmd *cobra.Command) {
		registered := map[string]bool{"help": true}
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			registered[f.Name] = true
		})

		var texts []string
		texts = append(texts, cmd.Long, cmd.Short)
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			texts = append(texts, f.Usage)
		})

		for _, text := range texts {
			for _, m := range flagRef.FindAllStringSubmatch(text, -1) {
				if !registered[m[1]] {
					t.Errorf("%s %s: help references unknown flag --%s", path, cmd.Name(), m[1])
				}
			}
		}
		for _, c := range cmd.Commands() {
			walk(path+" "+cmd.Name(), c)
		}
	}
	walk("sb", ContextCmd())
}

func TestReparentHelpDescribesRootPromotion(t *testing.T) {
	for _, cmd := range ContextCmd().Commands() {
		if cmd.Name() != "reparent" {
			continue
		}
		if !strings.Contains(cmd.Long, "Omit\n--under") && !strings.Contains(cmd.Long, "Omit --under") {
			t.Errorf("reparent help does not explain that omitting --under promotes to root:\n%s", cmd.Long)
		}
		return
	}
	t.Fatal("reparent subcommand not found")
}
