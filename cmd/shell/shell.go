package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"webnavigator/browser"
	"webnavigator/config"
	"webnavigator/env"
	"webnavigator/logging"
	"webnavigator/navigator"
	"webnavigator/runner"
	"webnavigator/turn"
	"webnavigator/utils/printx"
)

const helpText = `Type a message for the navigator, for example "search for the weather in Montreal".
To let the navigator take its next step without a new message, type "continue".
To log the transcript and the replay, type "log".
To exit gracefully, type "exit".`

func main() {
	if err := newRootCommand().Execute(); err != nil {
		printx.PrintInColor(printx.ColorRed, err.Error())
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.NewViper()
	var configPath, logPath, sessionID string

	root := &cobra.Command{
		Use:           "shell",
		Short:         "Chat with the navigator while it drives a live browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			return runShell(cmd.Context(), cfg, logPath, sessionID)
		},
	}
	flags := root.Flags()
	flags.StringVar(&configPath, "config", "", "config file (default navigator.yaml in . or $HOME)")
	flags.StringVar(&logPath, "log-path", "out", "the directory to write the transcript and replay to")
	flags.StringVar(&sessionID, "session-id", "", "session id (default shell-<timestamp>)")
	flags.Bool("headful", false, "run the browser in non-headless mode")
	flags.String("url", "https://www.google.com", "the initial url to visit")
	flags.String("log-level", "warn", "log level")
	flags.String("agent-strategy", "base", `the agent strategy to use; one of ["base", "retry"]`)
	bind(v, flags, map[string]string{
		"browser.headful": "headful",
		"browser.url":     "url",
		"log.level":       "log-level",
		"agent.strategy":  "agent-strategy",
	})
	return root
}

func bind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func runShell(ctx context.Context, cfg *config.Config, logPath, sessionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.Setup(&logging.Options{Level: cfg.Log.Level, Format: logging.FormatConsole})
	if err != nil {
		return err
	}
	e, err := env.NewEnvironment(cfg, &env.Options{Logger: logger})
	if err != nil {
		return err
	}
	b := browser.New(ctx, &browser.Options{
		Headful:                           cfg.Browser.Headful,
		AttemptToDisableAutomationMessage: true,
		UIDKey:                            cfg.Browser.UIDKey,
		Logger:                            logger,
	})
	defer b.Close()

	if sessionID == "" {
		sessionID = fmt.Sprintf("shell-%d", time.Now().Unix())
	}
	r := runner.New(e.Navigator, b, &runner.Options{SessionID: sessionID, Logger: logger})
	printx.PrintInColor(printx.ColorGray, "Loading "+cfg.Browser.URL+"...")
	if err := r.Start(cfg.Browser.URL); err != nil {
		return err
	}
	printx.PrintStandardHeader("SESSION " + sessionID)
	fmt.Println()

	writeLog := func() {
		if err := r.Log(filepath.Join(logPath, sessionID+".transcript.json")); err != nil {
			printx.PrintInColor(printx.ColorYellow, "Failed to write the transcript: "+err.Error())
			return
		}
		if err := e.Store.Dump(logPath); err != nil {
			printx.PrintInColor(printx.ColorYellow, "Failed to dump the replay: "+err.Error())
			return
		}
		printx.PrintInColor(printx.ColorGray, "Logged the current state to "+logPath+".")
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("user: ")
ScannerLoop:
	for scanner.Scan() {
		text := scanner.Text()
		var resp *navigator.Response
		var err error
		switch text {
		case "":
			fmt.Print("user: ")
			continue ScannerLoop
		case "exit":
			fmt.Println("\nexiting...")
			writeLog()
			break ScannerLoop
		case "log":
			writeLog()
			fmt.Print("user: ")
			continue ScannerLoop
		case "help":
			printx.PrintInColor(printx.ColorGray, helpText)
			fmt.Print("user: ")
			continue ScannerLoop
		case string(turn.IntentContinue):
			resp, err = r.Continue(ctx)
		default:
			resp, err = r.Chat(ctx, text)
		}
		printResponse(resp, err, b.UIDKey())
		fmt.Print("user: ")
	}
	return scanner.Err()
}

func printResponse(resp *navigator.Response, err error, uidKey string) {
	if resp != nil {
		if resp.Intent == turn.IntentSay {
			printx.PrintInColor(printx.ColorGreen, "navigator: "+browser.StringArg(resp.Args, "utterance"))
		} else {
			line := fmt.Sprintf("navigator %s %v", resp.Intent, resp.Args)
			if resp.Element != nil {
				line += fmt.Sprintf(" on %s (%s)", resp.Element.UID(uidKey), resp.Element.XPath)
			}
			printx.PrintInColor(printx.ColorCyan, line)
		}
	}
	if err == nil {
		return
	}
	if navigator.StatusCode(err) < 500 {
		printx.PrintInColor(printx.ColorYellow, err.Error()+" Rolled back, try again or rephrase.")
	} else {
		printx.PrintInColor(printx.ColorRed, err.Error())
	}
}
