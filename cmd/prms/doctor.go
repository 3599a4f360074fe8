package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/prms-console/internal/gateway"
	"github.com/franz/prms-console/internal/keyvalue"
	"github.com/franz/prms-console/internal/util"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure prms can operate correctly.

This command checks:
- SQLite version compatibility
- State database accessibility and integrity
- Whether a login token is stored, and whether the backend accepts it
- Backend reachability (/health)
- Event log directory permissions

Use this command to troubleshoot issues before running prms operations.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== PRMS Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	// 1. Check SQLite
	results = append(results, checkSQLite())

	// 2. Check state database file
	dbPath, err := GetConfigPath("db", defaultDBPath)
	if err != nil {
		results = append(results, checkResult{name: "State database", error: true, message: err.Error()})
	} else {
		results = append(results, checkStateDatabase(dbPath))
	}

	// 3. Check backend and token
	if err == nil {
		if kv, openErr := keyvalue.Open(dbPath); openErr == nil {
			results = append(results, checkBackendAndToken(cmd.Context(), kv)...)
			kv.Close()
		}
	}

	// 4. Check event log directory
	if dir, _ := GetConfigPath("events_dir", ""); dir != "" {
		results = append(results, checkEventsDir(dir))
	}

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running prms.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed! The console is ready.")
	}

	return nil
}

// checkSQLite verifies the embedded SQLite works
func checkSQLite() checkResult {
	version := keyvalue.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkStateDatabase verifies the token store is readable and intact
func checkStateDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "State database",
			warning: true,
			message: "no state path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "State database",
				message: fmt.Sprintf("%s (will be created on first login)", dbPath),
			}
		}
		return checkResult{
			name:    "State database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	kv, err := keyvalue.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "State database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer kv.Close()

	if err := kv.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "State database",
			error:   true,
			message: err.Error(),
		}
	}

	return checkResult{
		name:    "State database",
		message: fmt.Sprintf("%s (%s, integrity ok)", dbPath, humanize.Bytes(uint64(info.Size()))),
	}
}

// checkBackendAndToken calls /health, then /auth/me when a token is stored.
// A rejected token is purged by the gateway, as after any 401.
func checkBackendAndToken(ctx context.Context, kv *keyvalue.Store) []checkResult {
	api, err := gateway.New(gateway.Config{
		BaseURL:  util.GetBaseURL(),
		Timeout:  util.GetRequestTimeout(),
		RetryMax: 0,
		Tokens:   kv,
	})
	if err != nil {
		return []checkResult{{name: "Backend", error: true, message: err.Error()}}
	}
	return []checkResult{checkBackend(ctx, api), checkToken(ctx, kv, api)}
}

func checkBackend(ctx context.Context, api *gateway.Client) checkResult {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	if err := api.Health(ctx); err != nil {
		return checkResult{
			name:    "Backend",
			error:   true,
			message: fmt.Sprintf("%s unreachable: %v", api.BaseURL(), err),
		}
	}
	return checkResult{
		name:    "Backend",
		message: fmt.Sprintf("%s (%s)", api.BaseURL(), time.Since(start).Round(time.Millisecond)),
	}
}

func checkToken(ctx context.Context, kv *keyvalue.Store, api *gateway.Client) checkResult {
	tok, err := kv.Token()
	if err != nil {
		return checkResult{name: "Login", error: true, message: err.Error()}
	}
	if tok == "" {
		return checkResult{name: "Login", warning: true, message: "not signed in (run 'prms login')"}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	u, err := api.Auth().Me(ctx)
	switch {
	case util.IsKind(err, util.KindAuth):
		return checkResult{name: "Login", warning: true, message: "stored token was rejected and removed (run 'prms login')"}
	case err != nil:
		return checkResult{name: "Login", warning: true, message: fmt.Sprintf("could not verify token: %v", err)}
	}
	return checkResult{name: "Login", message: fmt.Sprintf("signed in as %s", u.Username)}
}

// checkEventsDir verifies the audit trail directory is writable
func checkEventsDir(dir string) checkResult {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	testFile := filepath.Join(dir, ".prms-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	os.Remove(testFile)
	return checkResult{name: "Event log directory", message: dir}
}
