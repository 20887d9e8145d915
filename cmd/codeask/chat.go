package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codeask/internal/batch"
	"codeask/internal/chat"
	"codeask/internal/llm"
	"codeask/internal/session"
	"codeask/internal/watcher"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question-answer session",
	Long: `Starts an interactive session. Questions are answered from the
summary index; the index refreshes in the background when files
change. Commands: :reindex forces a refresh, :status shows progress,
:quit exits.`,
	Run: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repoRoot := mustGetRepoRoot()
	a, err := buildApp(ctx, repoRoot, true, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	sessionID, err := a.transcripts.BeginSession(repoRoot, a.cfg.API.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	a.engine.WithTranscripts(a.transcripts, sessionID)
	a.client.SetObserver(func(log llm.CallLog) {
		if err := a.transcripts.RecordCall(sessionID, log); err != nil {
			a.logger.Debug("Failed to record api call", map[string]interface{}{
				"error": err.Error(),
			})
		}
	})

	state := session.NewState(0)
	a.indexer.SetProgress(state.ApplyProgress)

	var wg sync.WaitGroup

	// Questions flow through the batch processor so arrival bursts
	// decouple from answer latency.
	processor := batch.NewProcessor(batch.Config{
		MaxSize:  a.cfg.Batch.MaxSize,
		Interval: time.Duration(a.cfg.Batch.IntervalMs) * time.Millisecond,
	}, func(items []string) {
		for _, question := range items {
			answerOne(ctx, a, state, question)
		}
	}, a.logger.WithComponent("batch"))

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case question := <-state.Queries():
				if !processor.Submit(question) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-state.ReindexRequests():
				reindexOnce(ctx, a, state)
			case <-ctx.Done():
				return
			}
		}
	}()

	if a.cfg.Watcher.Enabled {
		w, werr := watcher.New(repoRoot, indexConfig(a.cfg),
			time.Duration(a.cfg.Watcher.DebounceMs)*time.Millisecond,
			a.logger.WithComponent("watcher"),
			func(paths []string) {
				state.AppendLog(fmt.Sprintf("%d files changed on disk", len(paths)))
				state.RequestReindex()
			})
		if werr != nil {
			a.logger.Warn("File watching unavailable", map[string]interface{}{
				"error": werr.Error(),
			})
		} else if werr := w.Start(); werr != nil {
			a.logger.Warn("File watching unavailable", map[string]interface{}{
				"error": werr.Error(),
			})
		} else {
			defer w.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down")
		cancel()
		os.Stdin.Close()
	}()

	// Bring the index up to date before taking questions.
	state.RequestReindex()

	fmt.Printf("codeask: ask about %s (:reindex, :status, :quit)\n", repoRoot)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == ":quit" || line == ":exit":
			cancel()
		case line == ":reindex":
			state.RequestReindex()
			fmt.Println("reindex requested")
		case line == ":status":
			printSnapshot(state.Snapshot())
		default:
			if !state.SubmitQuery(line) {
				fmt.Println("query queue is full, try again shortly")
			}
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	processor.Close()
	wg.Wait()
}

// answerOne runs a single turn and commits the outcome to the shared
// state.
func answerOne(ctx context.Context, a *app, state *session.State, question string) {
	if ctx.Err() != nil {
		return
	}
	state.BeginAnswer(question)

	turn, err := a.engine.Ask(ctx, question)
	if err != nil {
		if err == chat.ErrBusy {
			state.FailAnswer(err)
			state.AppendLog("dropped question while busy: " + question)
			return
		}
		state.FailAnswer(err)
		fmt.Printf("\nerror: %v\n", err)
		return
	}

	state.CommitAnswer(turn.Answer)
	fmt.Printf("\n%s\n\n", turn.Answer)
}

// reindexOnce runs a full reindex and records it in the shared state.
func reindexOnce(ctx context.Context, a *app, state *session.State) {
	if ctx.Err() != nil {
		return
	}
	state.BeginIndexing()
	stats, err := a.indexer.Reindex(ctx)
	state.EndIndexing(stats, err)
}

func printSnapshot(snap session.Snapshot) {
	if snap.Indexing {
		fmt.Printf("indexing: %d/%d files\n", snap.IndexDone, snap.IndexTotal)
		for _, fp := range snap.InFlight {
			fmt.Printf("  %s (%s)\n", fp.Path, fp.State)
		}
	} else {
		fmt.Println("indexing: idle")
	}
	if snap.Answering {
		fmt.Println("answer: in progress")
	}
	n := len(snap.Logs)
	for _, line := range snap.Logs[max(0, n-10):] {
		fmt.Println("  " + line)
	}
}
