// Copyright 2026 The Meridian Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/meridian-quant/meridian/cmd/meridian/cli"
	"github.com/meridian-quant/meridian/lib/index"
	"github.com/meridian-quant/meridian/lib/lineage"
	"github.com/meridian-quant/meridian/lib/object"
	"github.com/meridian-quant/meridian/lib/repository"
	"github.com/meridian-quant/meridian/lib/schema"
)

// repoFlags are the flags shared by every subcommand that opens a
// repository.
type repoFlags struct {
	root    string
	verbose bool
}

func (f *repoFlags) register(flagSet *pflag.FlagSet) {
	defaultRoot := os.Getenv("MERIDIAN_REPO")
	if defaultRoot == "" {
		defaultRoot = "."
	}
	flagSet.StringVar(&f.root, "repo", defaultRoot, "repository directory (defaults to $MERIDIAN_REPO or .)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log repository internals to stderr")
}

func (f *repoFlags) open(ctx context.Context) (*repository.Repository, error) {
	logger := slog.New(slog.DiscardHandler)
	if f.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return repository.Open(ctx, repository.Options{
		Root:   f.root,
		Logger: logger,
	})
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "meridian",
		Summary: "Content-addressed artifact store for backtest provenance.",
		Description: "meridian stores research artifacts (datasets, strategies, backtest\n" +
			"configs and results, verification reports) by content hash, records\n" +
			"their lineage, and answers search and history queries over them.",
		Subcommands: []*cli.Command{
			initCommand(),
			commitCommand(),
			showCommand(),
			searchCommand(),
			logCommand(),
			historyCommand(),
			diffCommand(),
		},
	}
}

func initCommand() *cli.Command {
	var flags repoFlags
	return &cli.Command{
		Name:    "init",
		Summary: "Initialize a repository directory.",
		Usage:   "meridian init [--repo DIR]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("init", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			repo, err := flags.open(context.Background())
			if err != nil {
				return err
			}
			defer repo.Close()
			fmt.Printf("initialized repository at %s\n", flags.root)
			return nil
		},
	}
}

func commitCommand() *cli.Command {
	var (
		flags   repoFlags
		file    string
		message string
		parents []string
	)
	return &cli.Command{
		Name:    "commit",
		Summary: "Commit an artifact from a JSON file or stdin.",
		Usage:   "meridian commit --file artifact.json [--parent HASH]... [--message TEXT]",
		Examples: []cli.Example{
			{
				Description: "commit a dataset",
				Command:     "meridian commit --file spy-daily.json --message 'raw bars'",
			},
			{
				Description: "commit a config derived from two earlier artifacts",
				Command:     "meridian commit --file config.json --parent <strategy-hash> --parent <dataset-hash>",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("commit", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVarP(&file, "file", "f", "-", "artifact JSON file ('-' reads stdin)")
			flagSet.StringVarP(&message, "message", "m", "", "commit message")
			flagSet.StringArrayVar(&parents, "parent", nil, "parent artifact hash (repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			var (
				data []byte
				err  error
			)
			if file == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("reading artifact: %w", err)
			}

			var artifact schema.Artifact
			if err := json.Unmarshal(data, &artifact); err != nil {
				return fmt.Errorf("parsing artifact JSON: %w", err)
			}

			parentHashes := make([]object.Hash, len(parents))
			for i, parent := range parents {
				parentHashes[i], err = object.ParseHash(parent)
				if err != nil {
					return err
				}
			}

			ctx := context.Background()
			repo, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			commit, err := repo.Commit(ctx, &artifact, parentHashes, message)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  seq %d\n",
				object.FormatHash(commit.Hash), object.FormatRef(commit.Hash), commit.Sequence)
			return nil
		},
	}
}

func showCommand() *cli.Command {
	var flags repoFlags
	return &cli.Command{
		Name:    "show",
		Summary: "Print a committed artifact and its commit.",
		Usage:   "meridian show HASH",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("show takes exactly one hash argument")
			}
			hash, err := object.ParseHash(args[0])
			if err != nil {
				return err
			}

			repo, err := flags.open(context.Background())
			if err != nil {
				return err
			}
			defer repo.Close()

			artifact, commit, err := repo.Get(hash)
			if err != nil {
				return err
			}

			printCommit(os.Stdout, commit)
			encoded, err := json.MarshalIndent(artifact, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding artifact: %w", err)
			}
			fmt.Printf("\n%s\n", encoded)
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	var (
		flags        repoFlags
		kind         string
		goal         string
		strategyType string
		provider     string
		tags         []string
		policyKeys   []string
		limit        int
	)
	return &cli.Command{
		Name:    "search",
		Summary: "Search the metadata index.",
		Usage:   "meridian search [--kind KIND] [--goal TEXT] [--tag TAG]... [--limit N]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("search", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.StringVar(&kind, "kind", "", "artifact kind (dataset, strategy_spec, backtest_config, backtest_result, crv_report, trace)")
			flagSet.StringVar(&goal, "goal", "", "strategy goal (exact match)")
			flagSet.StringVar(&strategyType, "strategy-type", "", "strategy type (exact match)")
			flagSet.StringVar(&provider, "provider", "", "dataset provider (exact match)")
			flagSet.StringArrayVar(&tags, "tag", nil, "regime tag, any-of (repeatable)")
			flagSet.StringArrayVar(&policyKeys, "policy-key", nil, "policy constraint key, any-of (repeatable)")
			flagSet.IntVar(&limit, "limit", 0, "maximum results (0 = unlimited)")
			return flagSet
		},
		Run: func(args []string) error {
			ctx := context.Background()
			repo, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			entries, err := repo.Search(ctx, index.Query{
				Kind:         schema.Kind(kind),
				Goal:         goal,
				StrategyType: strategyType,
				Provider:     provider,
				RegimeTags:   tags,
				PolicyKeys:   policyKeys,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "REF\tKIND\tNAME\tCOMMITTED\tMESSAGE")
			for _, entry := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					object.FormatRef(entry.Hash),
					entry.Kind,
					entry.Name,
					time.Unix(0, entry.CommittedAt).UTC().Format(time.RFC3339),
					entry.Message)
			}
			return tw.Flush()
		},
	}
}

func logCommand() *cli.Command {
	var flags repoFlags
	return &cli.Command{
		Name:    "log",
		Summary: "Print every commit, oldest first.",
		Usage:   "meridian log",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("log", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			repo, err := flags.open(context.Background())
			if err != nil {
				return err
			}
			defer repo.Close()

			return printCommits(os.Stdout, repo.Log())
		},
	}
}

func historyCommand() *cli.Command {
	var flags repoFlags
	return &cli.Command{
		Name:    "history",
		Summary: "Print an artifact's full ancestry, newest first.",
		Usage:   "meridian history HASH",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("history takes exactly one hash argument")
			}
			hash, err := object.ParseHash(args[0])
			if err != nil {
				return err
			}

			repo, err := flags.open(context.Background())
			if err != nil {
				return err
			}
			defer repo.Close()

			history, err := repo.History(hash)
			if err != nil {
				return err
			}
			return printCommits(os.Stdout, history)
		},
	}
}

func diffCommand() *cli.Command {
	var flags repoFlags
	return &cli.Command{
		Name:    "diff",
		Summary: "Print field-level differences between two artifacts.",
		Usage:   "meridian diff HASH HASH",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("diff", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("diff takes exactly two hash arguments")
			}
			hashA, err := object.ParseHash(args[0])
			if err != nil {
				return err
			}
			hashB, err := object.ParseHash(args[1])
			if err != nil {
				return err
			}

			repo, err := flags.open(context.Background())
			if err != nil {
				return err
			}
			defer repo.Close()

			diffs, err := repo.Diff(hashA, hashB)
			if err != nil {
				return err
			}
			if len(diffs) == 0 {
				fmt.Println("artifacts are identical")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FIELD\tA\tB")
			for _, diff := range diffs {
				fmt.Fprintf(tw, "%s\t%v\t%v\n", diff.Path, diff.A, diff.B)
			}
			return tw.Flush()
		},
	}
}

func printCommit(w io.Writer, commit lineage.Commit) {
	fmt.Fprintf(w, "commit %s (seq %d, %s)\n",
		object.FormatHash(commit.Hash),
		commit.Sequence,
		commit.ArtifactKind)
	for _, parent := range commit.Parents {
		fmt.Fprintf(w, "parent %s\n", object.FormatHash(parent))
	}
	fmt.Fprintf(w, "date   %s\n", time.Unix(0, commit.Time).UTC().Format(time.RFC3339))
	if commit.Message != "" {
		fmt.Fprintf(w, "\n    %s\n", commit.Message)
	}
}

func printCommits(w io.Writer, commits []lineage.Commit) error {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tREF\tKIND\tPARENTS\tDATE\tMESSAGE")
	for _, commit := range commits {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			commit.Sequence,
			object.FormatRef(commit.Hash),
			commit.ArtifactKind,
			len(commit.Parents),
			time.Unix(0, commit.Time).UTC().Format(time.RFC3339),
			commit.Message)
	}
	return tw.Flush()
}
