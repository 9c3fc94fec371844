package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/XuF163/metaGenerator-sub000/internal/expr"
	"github.com/XuF163/metaGenerator-sub000/internal/game"
	"github.com/XuF163/metaGenerator-sub000/internal/plan"
	"github.com/XuF163/metaGenerator-sub000/internal/repair"
	"github.com/XuF163/metaGenerator-sub000/internal/resolve"
	"github.com/XuF163/metaGenerator-sub000/internal/validate"
)

var (
	checkKind  string
	checkGame  string
	checkInput string
)

var roles = map[string]expr.Role{
	"guard":    expr.RoleGuard,
	"value":    expr.RoleBuff,
	"buff":     expr.RoleBuff,
	"damage":   expr.RoleDamage,
	"heal":     expr.RoleHeal,
	"shield":   expr.RoleShield,
	"reaction": expr.RoleReaction,
}

// checkExprCmd runs one expression through the acceptance chain
var checkExprCmd = &cobra.Command{
	Use:   "check-expr [expression]",
	Short: "Check whether an expression would be accepted into a plan",
	Long: `Runs the safety gate, structural checks and table resolution on one
expression and prints its canonical form.

Kinds: guard, value (alias buff), damage, heal, shield, reaction.
Table references resolve against --input when given.

Example:
  calcgen check-expr --kind guard 'params.stacks >= 2 && cons >= 1'`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckExpr,
}

// rulesCmd lists the repair pipeline
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List repair passes in run order and the rule registry ids",
	RunE:  runRules,
}

func init() {
	checkExprCmd.Flags().StringVarP(&checkKind, "kind", "k", "guard", "Expression kind")
	checkExprCmd.Flags().StringVarP(&checkGame, "game", "g", "gs", "Game profile (gs or sr)")
	checkExprCmd.Flags().StringVarP(&checkInput, "input", "i", "", "Character input JSON supplying talent tables")
}

func runCheckExpr(cmd *cobra.Command, args []string) error {
	role, ok := roles[strings.ToLower(checkKind)]
	if !ok {
		return fmt.Errorf("unknown kind %q", checkKind)
	}

	g, err := game.Parse(checkGame)
	if err != nil {
		return err
	}
	var known resolve.Known
	if checkInput != "" {
		data, err := os.ReadFile(checkInput)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		in, err := plan.ParseInput(data)
		if err != nil {
			return err
		}
		g, known = in.Game, in.Known()
	}

	e, err := validate.CheckExpr(args[0], role, game.For(g), known)
	if err != nil {
		return fmt.Errorf("rejected: %s", validate.Describe(checkKind, err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), e.String())
	return nil
}

func runRules(cmd *cobra.Command, args []string) error {
	engine, err := repair.New(cfg.Repair, cfg.Limits)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Passes:")
	for i, p := range engine.Passes() {
		state := ""
		if !engine.Enabled(p.Name) {
			state = " (disabled)"
		}
		fmt.Fprintf(out, "  %2d. %-22s %s%s\n", i+1, p.Name, p.Doc, state)
		if len(p.After) > 0 {
			fmt.Fprintf(out, "      after: %s\n", strings.Join(p.After, ", "))
		}
	}

	ids := engine.Rules().IDs()
	groups := make([]string, 0, len(ids))
	for k := range ids {
		groups = append(groups, k)
	}
	sort.Strings(groups)
	fmt.Fprintln(out, "Rules:")
	for _, k := range groups {
		fmt.Fprintf(out, "  %s (%d): %s\n", k, len(ids[k]), strings.Join(ids[k], ", "))
	}
	return nil
}
