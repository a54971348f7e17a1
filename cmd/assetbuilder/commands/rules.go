package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/resolve"
	"git.home.luguber.info/inful/assetbuilder/internal/rules"
)

// RulesCmd lists the rule set or explains which chain applies to modules.
type RulesCmd struct {
	Modules []string `arg:"" optional:"" help:"Module identifiers or file paths to explain"`
}

func (r *RulesCmd) Run(g *Global, root *CLI) error {
	cfg, _, _, err := root.Load(config.ModeProduction)
	if err != nil {
		return err
	}
	set, err := rules.Compile(cfg.Rules)
	if err != nil {
		return err
	}
	w := out(g)
	if len(r.Modules) == 0 {
		listRules(w, set)
		return nil
	}
	ids := resolve.NewFSResolver(cfg.Context, resolve.Options{})
	for _, m := range r.Modules {
		explain(w, set, moduleID(ids, m), m)
	}
	return nil
}

// moduleID maps an existing file to its identifier; anything else is taken
// as an identifier already.
func moduleID(ids *resolve.FSResolver, arg string) string {
	if _, err := os.Stat(arg); err == nil {
		if abs, err := filepath.Abs(arg); err == nil {
			if id, ok := ids.ID(abs); ok {
				return id
			}
		}
	}
	return rules.Normalize(arg)
}

func listRules(w io.Writer, set *rules.Set) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tENFORCE\tTEST\tEXCLUDE\tUSE")
	for _, rule := range set.Rules() {
		exclude := "-"
		if rule.Exclude != nil {
			exclude = rule.Exclude.String()
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			rule.Index, rule.Tier, rule.Test, exclude, strings.Join(rule.Use.Names(), " -> "))
	}
	_ = tw.Flush()
}

func explain(w io.Writer, set *rules.Set, id, arg string) {
	chain := set.Match(id)
	if len(chain) == 0 {
		_, _ = fmt.Fprintf(w, "%s: no matching rule (passed through)\n", arg)
		return
	}
	idx := set.MatchedRules(id)
	refs := make([]string, len(idx))
	for i, n := range idx {
		refs[i] = strconv.Itoa(n)
	}
	_, _ = fmt.Fprintf(w, "%s: %s (rules %s)\n", arg, strings.Join(chain.Names(), " -> "), strings.Join(refs, ", "))
}
