// policyctl genera y verifica las dos superficies de enforcement a partir de la
// tabla de políticas: el DDL de row-level security, la matriz exportada para
// clientes y el chequeo de consistencia entre ambas capas.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"project-tracker/internal/domain/authz"
	"project-tracker/internal/domain/authz/rls"
)

// Códigos de salida.
const (
	exitOK         = 0
	exitDivergence = 1
	exitUsage      = 2
	exitError      = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}

	policy := authz.Default()
	storage, err := rls.Compile(policy)
	if err != nil {
		fmt.Fprintf(stderr, "policyctl: compile: %v\n", err)
		return exitError
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "sql":
		return runSQL(rest, storage, stdout, stderr)
	case "export":
		return runExport(rest, policy, stdout, stderr)
	case "check":
		return runCheck(ctx, rest, policy, storage, stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "policyctl: unknown command %q\n", cmd)
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage:
  policyctl sql [--schema public] [--app-role app_service]
  policyctl export [--format json|yaml] [--role ROLE] [--resource RESOURCE]
  policyctl check [--parallel N]
`)
}

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("policyctl "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runSQL(args []string, storage *rls.StoragePolicy, stdout, stderr io.Writer) int {
	fs := newFlagSet("sql", stderr)
	schema := fs.String("schema", rls.DefaultDialect.Schema, "schema de las tablas")
	appRole := fs.String("app-role", rls.DefaultDialect.AppRole, "rol de base de la aplicación")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	d := rls.DefaultDialect
	d.Schema = strings.TrimSpace(*schema)
	if d.Schema == "" {
		fmt.Fprintln(stderr, "policyctl sql: --schema must not be empty")
		return exitUsage
	}
	d.AppRole = strings.TrimSpace(*appRole)
	if d.AppRole == "" {
		fmt.Fprintln(stderr, "policyctl sql: --app-role must not be empty")
		return exitUsage
	}
	if _, err := io.WriteString(stdout, storage.RenderSQL(d)); err != nil {
		fmt.Fprintf(stderr, "policyctl sql: %v\n", err)
		return exitError
	}
	return exitOK
}

func runExport(args []string, policy *authz.Policy, stdout, stderr io.Writer) int {
	fs := newFlagSet("export", stderr)
	format := fs.StringP("format", "f", "json", "json o yaml")
	roleFlag := fs.String("role", "", "filtrar por rol")
	resourceFlag := fs.String("resource", "", "filtrar por tipo de registro")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var role authz.Role
	if *roleFlag != "" {
		r, err := authz.ParseRole(*roleFlag)
		if err != nil {
			fmt.Fprintf(stderr, "policyctl export: %v\n", err)
			return exitUsage
		}
		role = r
	}
	var rt authz.ResourceType
	if *resourceFlag != "" {
		r, err := authz.ParseResource(*resourceFlag)
		if err != nil {
			fmt.Fprintf(stderr, "policyctl export: %v\n", err)
			return exitUsage
		}
		rt = r
	}

	rows := make([]authz.Row, 0)
	for _, row := range authz.NewMatrix(policy).Rows() {
		if role != "" && row.Role != role {
			continue
		}
		if rt != "" && row.Resource != rt {
			continue
		}
		rows = append(rows, row)
	}

	switch strings.ToLower(*format) {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			fmt.Fprintf(stderr, "policyctl export: encode json: %v\n", err)
			return exitError
		}
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			fmt.Fprintf(stderr, "policyctl export: encode yaml: %v\n", err)
			return exitError
		}
		if err := enc.Close(); err != nil {
			fmt.Fprintf(stderr, "policyctl export: encode yaml: %v\n", err)
			return exitError
		}
	default:
		fmt.Fprintf(stderr, "policyctl export: unknown format %q\n", *format)
		return exitUsage
	}
	return exitOK
}

func runCheck(ctx context.Context, args []string, policy *authz.Policy, storage *rls.StoragePolicy, stdout, stderr io.Writer) int {
	fs := newFlagSet("check", stderr)
	parallel := fs.Int("parallel", runtime.GOMAXPROCS(0), "recursos a barrer en paralelo")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *parallel < 1 {
		fmt.Fprintln(stderr, "policyctl check: --parallel must be >= 1")
		return exitUsage
	}

	var (
		mu  sync.Mutex
		all []rls.Divergence
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for _, rt := range authz.Resources() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ds, err := rls.CheckResource(policy, storage, rt)
			if err != nil {
				return fmt.Errorf("%s: %w", rt, err)
			}
			mu.Lock()
			all = append(all, ds...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(stderr, "policyctl check: %v\n", err)
		return exitError
	}

	if len(all) == 0 {
		fmt.Fprintf(stdout, "ok: %d resources, app tier is a subset of the data tier\n", len(authz.Resources()))
		return exitOK
	}

	lines := make([]string, 0, len(all))
	for _, d := range all {
		lines = append(lines, d.String())
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(stdout, "divergence:", l)
	}
	fmt.Fprintf(stderr, "policyctl check: %d divergences\n", len(all))
	return exitDivergence
}
