// Package main is the entrypoint for the vault server binary, replacing
// the teacher's single-user "same" CLI with a multi-tenant daemon: one
// process, every tenant's vault/index/oracle/librarian wired through
// C12's HTTP façade. Grounded on the teacher's cmd/same/main.go cobra
// root-command shape and cmd/same/web_cmd.go's signal-driven graceful
// shutdown, generalised from a single local dashboard command into the
// one long-running "serve" command this daemon needs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bigwolfeman/document-mcp/internal/auth"
	"github.com/bigwolfeman/document-mcp/internal/config"
	"github.com/bigwolfeman/document-mcp/internal/contexttree"
	"github.com/bigwolfeman/document-mcp/internal/index"
	"github.com/bigwolfeman/document-mcp/internal/librarian"
	"github.com/bigwolfeman/document-mcp/internal/logx"
	"github.com/bigwolfeman/document-mcp/internal/oracle"
	"github.com/bigwolfeman/document-mcp/internal/search"
	"github.com/bigwolfeman/document-mcp/internal/server"
	"github.com/bigwolfeman/document-mcp/internal/tools"
	"github.com/bigwolfeman/document-mcp/internal/vault"
)

// Version is set at build time via ldflags (mirrors the teacher's Version var).
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "vaultd",
		Short: "Multi-tenant knowledge vault server",
		Long: `vaultd serves a multi-tenant Obsidian-style knowledge vault over
HTTP and MCP: note storage, full-text search, wikilink graph, and an
LLM-driven Oracle agent with tool access to your notes.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file (optional; when empty, only defaults and env vars apply)")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(mcpStdioCmd(&configPath))
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vaultd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("vaultd %s\n", Version)
			return nil
		},
	}
}

// build constructs every core component in the teacher's dependency order
// (config -> vault -> index -> search/tools/oracle/librarian) and returns
// the assembled HTTP façade.
func build(configPath string) (*server.Server, config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("load config: %w", err)
	}

	log := logx.New("vaultd")

	v := vault.New(cfg.VaultBaseDir)

	db, err := index.Open(cfg.IndexDBPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("open index db: %w", err)
	}
	idx := index.NewIndexer(db, v)
	se := search.New(db)
	tree := contexttree.New(db)
	authSvc := auth.New(cfg)

	disp := tools.NewDispatcher(cfg.Tools.DefaultTimeout)
	lb := librarianProvider(cfg)
	lib := librarian.New(v, idx, lb, cfg.Oracle.Model, cfg.Librarian.Temperature)

	deps := &tools.Deps{
		Vault:     v,
		Indexer:   idx,
		Search:    se,
		DB:        db,
		Librarian: lib,
		External:  tools.NewExternalCollaborators(cfg.Tools.CodeSearchBaseURL, cfg.Tools.WebFetchBaseURL),
	}
	tools.RegisterCoreTools(disp, deps, cfg.Tools.VaultIOTimeout, cfg.Tools.CodeSearchTimeout,
		cfg.Tools.WebFetchTimeout, cfg.Tools.LibrarianTimeout)

	agent := oracle.New(oracleProvider(cfg), disp, tree, db, log)

	srv := server.New(cfg, v, idx, se, tree, authSvc, disp, agent, lib, log)
	return srv, cfg, nil
}

func oracleProvider(cfg config.Config) oracle.Provider {
	if cfg.Oracle.Provider == "ollama" {
		return oracle.NewOllamaProvider(cfg.Oracle.OllamaURL)
	}
	return oracle.NewAnthropicProvider(cfg.Oracle.AnthropicKey)
}

// librarianProvider mirrors oracleProvider: the Librarian subagent (C10)
// summarises with the same provider family as the Oracle, per spec §4.10.
func librarianProvider(cfg config.Config) oracle.Provider {
	return oracleProvider(cfg)
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, cfg, err := build(*configPath)
			if err != nil {
				return err
			}

			httpSrv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			go func() {
				select {
				case <-ctx.Done():
				case <-sigCh:
					fmt.Fprintln(os.Stderr, "Shutting down...")
					cancel()
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				fmt.Fprintf(os.Stderr, "vaultd listening on %s\n", cfg.HTTPAddr)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return fmt.Errorf("serve: %w", err)
				}
			case <-ctx.Done():
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("graceful shutdown: %w", err)
				}
			}
			return nil
		},
	}
}

// mcpStdioCmd runs the MCP tunnel over stdio for a single tenant, for
// CLI-style MCP clients that spawn one process per session rather than
// speaking streamable HTTP (spec §4.12).
func mcpStdioCmd(configPath *string) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP tunnel over stdio for one tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenant == "" {
				return fmt.Errorf("--tenant is required")
			}
			srv, _, err := build(*configPath)
			if err != nil {
				return err
			}
			return srv.ServeStdio(cmd.Context(), tenant)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant to scope this MCP session to")
	return cmd
}
