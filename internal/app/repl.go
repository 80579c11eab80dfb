package app

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/defiterm/defiterm/internal/command"
	termerr "github.com/defiterm/defiterm/internal/errors"
	"github.com/defiterm/defiterm/internal/out"
	"github.com/defiterm/defiterm/internal/wallet"
)

// newReplCommand is the interactive loop. Lines are resolved and executed
// against the live session; a handful of session-level builtins (use, connect,
// disconnect, suggest, exit) are handled before resolution because they change
// the session itself rather than run through it.
func (s *runtimeState) newReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive terminal session",
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := bufio.NewScanner(s.runner.stdin)
			s.prompt()
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					s.prompt()
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}
				if s.handleBuiltin(cmd, line) {
					s.prompt()
					continue
				}

				fields := strings.Fields(line)
				input, explicit := parseToken(fields[0])
				result, _, err := s.executeToken(cmd.Context(), input, explicit, fields[1:])
				if err != nil {
					s.printError(err)
				} else {
					s.printResult(result)
				}
				s.prompt()
			}
			return scanner.Err()
		},
	}
}

// handleBuiltin intercepts session-mutating inputs. Returns true when the line
// was consumed.
func (s *runtimeState) handleBuiltin(cmd *cobra.Command, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "use":
		if len(fields) != 2 {
			s.printError(termerr.New(termerr.CodeUsage, "usage: use <protocol>"))
			return true
		}
		protocol := strings.ToLower(fields[1])
		if _, ok := s.registry.Fiber(protocol); !ok {
			s.printError(termerr.New(termerr.CodeNotFound, "protocol "+protocol+" is not loaded"))
			return true
		}
		s.session = s.session.WithActiveProtocol(protocol)
		fmt.Fprintf(s.runner.stdout, "focused protocol: %s\n", protocol)
		return true
	case "connect":
		// connect <chain-id> signs with the DEFITERM_PRIVATE_KEY key;
		// connect <address> <chain-id> attaches a watch-only wallet.
		switch len(fields) {
		case 2:
			var chainID int64
			if _, err := fmt.Sscanf(fields[1], "%d", &chainID); err != nil {
				s.printError(termerr.New(termerr.CodeUsage, "invalid chain id: "+fields[1]))
				return true
			}
			signer, err := wallet.NewLocalSignerFromEnv()
			if err != nil {
				s.printError(err)
				return true
			}
			s.session = s.session.WithWallet(wallet.Connected(signer.Address(), chainID))
			fmt.Fprintf(s.runner.stdout, "wallet connected: %s\n", signer.Address().Hex())
		case 3:
			if !common.IsHexAddress(fields[1]) {
				s.printError(termerr.New(termerr.CodeUsage, "invalid address: "+fields[1]))
				return true
			}
			var chainID int64
			if _, err := fmt.Sscanf(fields[2], "%d", &chainID); err != nil {
				s.printError(termerr.New(termerr.CodeUsage, "invalid chain id: "+fields[2]))
				return true
			}
			s.session = s.session.WithWallet(wallet.Connected(common.HexToAddress(fields[1]), chainID))
			fmt.Fprintln(s.runner.stdout, "wallet connected (watch-only)")
		default:
			s.printError(termerr.New(termerr.CodeUsage, "usage: connect [<address>] <chain-id>"))
		}
		return true
	case "disconnect":
		s.session = s.session.WithWallet(wallet.Disconnected())
		fmt.Fprintln(s.runner.stdout, "wallet disconnected")
		return true
	case "suggest":
		if len(fields) != 2 {
			s.printError(termerr.New(termerr.CodeUsage, "usage: suggest <prefix>"))
			return true
		}
		input, explicit := parseToken(fields[1])
		for _, suggestion := range s.registry.Suggest(s.resolutionContext(input, explicit), s.settings.FuzzyThreshold) {
			label := suggestion.ID
			if suggestion.Protocol != "" {
				label = suggestion.Protocol + ":" + suggestion.ID
			}
			fmt.Fprintf(s.runner.stdout, "  %-24s %s\n", label, suggestion.Description)
		}
		return true
	}
	return false
}

func (s *runtimeState) prompt() {
	focus := s.session.ActiveProtocol()
	if focus == "" {
		fmt.Fprint(s.runner.stdout, "defiterm> ")
		return
	}
	fmt.Fprintf(s.runner.stdout, "defiterm(%s)> ", focus)
}

func (s *runtimeState) printResult(result command.Result) {
	switch result.Kind {
	case command.ResultMessage:
		fmt.Fprintln(s.runner.stdout, result.Message)
	case command.ResultTable:
		if result.Table != nil {
			_ = out.RenderTable(s.runner.stdout, *result.Table)
		}
	case command.ResultTransaction:
		if result.Transaction != nil {
			fmt.Fprintf(s.runner.stdout, "transaction request: %s\n", result.Transaction.Summary)
			fmt.Fprintf(s.runner.stdout, "  to: %s (chain %d)\n", result.Transaction.To, result.Transaction.ChainID)
		}
	case command.ResultCleared:
		fmt.Fprint(s.runner.stdout, "\033[2J\033[H")
	}
}

func (s *runtimeState) printError(err error) {
	code := termerr.ExitCode(err)
	fmt.Fprintf(s.runner.stderr, "error[%d]: %v\n", code, err)
}
