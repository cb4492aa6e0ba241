// Command relayd runs a credit-relay node and talks to one from the
// command line.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"credrelay/internal/config"
	"credrelay/internal/ident"
	"credrelay/internal/logging"
	"credrelay/internal/network"
	"credrelay/internal/node"
	"credrelay/internal/pprofutil"
	"credrelay/internal/wire"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "--help" || args[0] == "-h" {
		printUsage(stdout)
		return 0
	}
	switch args[0] {
	case "run":
		return runNode(args[1:], stdout, stderr)
	case "deposit":
		return runDeposit(args[1:], stdout, stderr)
	case "send":
		return runSend(args[1:], stdout, stderr)
	case "authorize":
		return runAuthorize(args[1:], stdout, stderr)
	case "withdraw":
		return runWithdraw(args[1:], stdout, stderr)
	case "register":
		return runRegister(args[1:], stdout, stderr)
	case "resolve":
		return runResolve(args[1:], stdout, stderr)
	case "alias":
		return runAlias(args[1:], stdout, stderr)
	case "visibility":
		return runVisibility(args[1:], stdout, stderr)
	case "rotate":
		return runRotate(args[1:], stdout, stderr)
	case "stats":
		return runStats(args[1:], stdout, stderr)
	case "admin":
		return runAdmin(args[1:], stdout, stderr)
	case "hash":
		return runHash(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: relayd <command> [args]")
	fmt.Fprintln(w, "  run        --config <path> [--debug]")
	fmt.Fprintln(w, "  hash       --secret <proof>")
	fmt.Fprintln(w, "  deposit    --addr <node> --id <hash> --amount <n>")
	fmt.Fprintln(w, "  send       --addr <node> --id <hash> --payload <data> [--seed <caller>]")
	fmt.Fprintln(w, "  authorize  --addr <node> --secret <proof> --withdrawer <seed>")
	fmt.Fprintln(w, "  withdraw   --addr <node> --id <hash> --amount <n> --seed <caller>")
	fmt.Fprintln(w, "  register   --addr <node> --seed <caller> --secret <proof> [--public] [--alias <name>] --payment <n>")
	fmt.Fprintln(w, "  resolve    --addr <node> [--owner <seed>] [--alias <name>] [--seed <caller>]")
	fmt.Fprintln(w, "  alias      --addr <node> --alias <name>")
	fmt.Fprintln(w, "  visibility --addr <node> --seed <caller> --id <hash> [--public] [--alias <name>]")
	fmt.Fprintln(w, "  rotate     --addr <node> --seed <caller> --id <hash> --secret <new proof>")
	fmt.Fprintln(w, "  stats      --addr <node>")
	fmt.Fprintln(w, "  admin      <msgfee|wfee|regfee|pause|unpause|collect|addshard> --addr <node> --seed <operator> [--fee <n>]")
}

func runNode(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config failed: %v\n", err)
		return 1
	}
	if *debug {
		cfg.Debug = true
	}
	log, err := logging.New(cfg.Debug)
	if err != nil {
		fmt.Fprintf(stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	if cfg.Pprof != "" {
		if err := pprofutil.Start(log, cfg.Pprof); err != nil {
			fmt.Fprintf(stderr, "pprof start failed: %v\n", err)
			return 1
		}
	}

	n, err := node.New(cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "node init failed: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ready := make(chan struct{})
	go func() {
		<-ready
		fmt.Fprintf(stdout, "READY quic=%s http=%s shards=%d\n", cfg.ListenQUIC, cfg.ListenHTTP, cfg.Shards)
	}()
	if err := n.Run(ctx, ready); err != nil {
		log.Error("node stopped", zap.Error(err))
		return 1
	}
	return 0
}

func runHash(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	secret := fs.String("secret", "", "secret proof")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	id, err := ident.Derive(*secret)
	if err != nil {
		fmt.Fprintf(stderr, "derive failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, id.Hex())
	return 0
}

func doRequest(addr string, req wire.Request, stdout, stderr io.Writer) int {
	if addr == "" {
		fmt.Fprintln(stderr, "missing --addr")
		return 1
	}
	resp, err := network.Do(context.Background(), addr, req)
	if err != nil {
		fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Fprintln(stdout, string(out))
	if !resp.OK {
		return 1
	}
	return 0
}

func runDeposit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deposit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	id := fs.String("id", "", "identity hash (hex)")
	amount := fs.Uint64("amount", 0, "credit amount")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := wire.NewRequest(wire.OpDeposit)
	req.Identity = *id
	req.Amount = *amount
	return doRequest(*addr, req, stdout, stderr)
}

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	id := fs.String("id", "", "identity hash (hex)")
	payload := fs.String("payload", "", "opaque payload")
	seed := fs.String("seed", "", "caller seed")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := wire.NewRequest(wire.OpSend)
	req.Identity = *id
	req.Payload = []byte(*payload)
	if *seed != "" {
		req.Caller = ident.PrincipalFromSeed(*seed).Hex()
	}
	return doRequest(*addr, req, stdout, stderr)
}

func runAuthorize(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("authorize", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	secret := fs.String("secret", "", "secret proof")
	withdrawer := fs.String("withdrawer", "", "withdrawer seed")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	id, err := ident.Derive(*secret)
	if err != nil {
		fmt.Fprintf(stderr, "derive failed: %v\n", err)
		return 1
	}
	req := wire.NewRequest(wire.OpAuthorize)
	req.Identity = id.Hex()
	req.SecretProof = *secret
	req.Withdrawer = ident.PrincipalFromSeed(*withdrawer).Hex()
	return doRequest(*addr, req, stdout, stderr)
}

func runWithdraw(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("withdraw", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	id := fs.String("id", "", "identity hash (hex)")
	amount := fs.Uint64("amount", 0, "withdrawal amount")
	seed := fs.String("seed", "", "caller seed")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := wire.NewRequest(wire.OpWithdraw)
	req.Identity = *id
	req.Amount = *amount
	req.Caller = ident.PrincipalFromSeed(*seed).Hex()
	return doRequest(*addr, req, stdout, stderr)
}

func runRegister(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	seed := fs.String("seed", "", "caller seed")
	secret := fs.String("secret", "", "secret proof")
	public := fs.Bool("public", false, "public visibility")
	alias := fs.String("alias", "", "alias")
	payment := fs.Uint64("payment", 0, "registration payment")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := wire.NewRequest(wire.OpRegister)
	req.Caller = ident.PrincipalFromSeed(*seed).Hex()
	req.SecretProof = *secret
	req.IsPublic = *public
	req.Alias = *alias
	req.Payment = *payment
	return doRequest(*addr, req, stdout, stderr)
}

func runResolve(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	owner := fs.String("owner", "", "owner seed")
	alias := fs.String("alias", "", "alias")
	seed := fs.String("seed", "", "caller seed")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var req wire.Request
	switch {
	case *alias != "":
		req = wire.NewRequest(wire.OpByAlias)
		req.Alias = *alias
		if *seed != "" {
			req.Caller = ident.PrincipalFromSeed(*seed).Hex()
		}
	case *owner != "":
		req = wire.NewRequest(wire.OpByOwner)
		req.Owner = ident.PrincipalFromSeed(*owner).Hex()
	default:
		fmt.Fprintln(stderr, "need --alias or --owner")
		return 1
	}
	return doRequest(*addr, req, stdout, stderr)
}

func runAlias(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("alias", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	alias := fs.String("alias", "", "alias to check")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := wire.NewRequest(wire.OpAliasFree)
	req.Alias = *alias
	return doRequest(*addr, req, stdout, stderr)
}

func runVisibility(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("visibility", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	seed := fs.String("seed", "", "caller seed")
	id := fs.String("id", "", "identity hash (hex)")
	public := fs.Bool("public", false, "public visibility")
	alias := fs.String("alias", "", "alias")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := wire.NewRequest(wire.OpVisibility)
	req.Caller = ident.PrincipalFromSeed(*seed).Hex()
	req.Identity = *id
	req.IsPublic = *public
	req.Alias = *alias
	return doRequest(*addr, req, stdout, stderr)
}

func runRotate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rotate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	seed := fs.String("seed", "", "caller seed")
	id := fs.String("id", "", "identity hash (hex)")
	secret := fs.String("secret", "", "new secret proof")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	req := wire.NewRequest(wire.OpRotate)
	req.Caller = ident.PrincipalFromSeed(*seed).Hex()
	req.Identity = *id
	req.SecretProof = *secret
	return doRequest(*addr, req, stdout, stderr)
}

func runStats(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return doRequest(*addr, wire.NewRequest(wire.OpStats), stdout, stderr)
}

func runAdmin(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: relayd admin <msgfee|wfee|regfee|pause|unpause|collect|addshard> ...")
		return 1
	}
	sub := args[0]
	fs := flag.NewFlagSet("admin "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "node address")
	seed := fs.String("seed", "", "operator seed")
	fee := fs.Uint64("fee", 0, "fee value")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	var req wire.Request
	switch sub {
	case "msgfee":
		req = wire.NewRequest(wire.OpSetMessageFee)
		req.Fee = *fee
	case "wfee":
		req = wire.NewRequest(wire.OpSetWithdrawalFee)
		req.Fee = *fee
	case "regfee":
		req = wire.NewRequest(wire.OpSetRegistrationFee)
		req.Fee = *fee
	case "pause":
		req = wire.NewRequest(wire.OpPause)
	case "unpause":
		req = wire.NewRequest(wire.OpUnpause)
	case "collect":
		req = wire.NewRequest(wire.OpCollectFees)
	case "addshard":
		req = wire.NewRequest(wire.OpAddShard)
	default:
		fmt.Fprintf(stderr, "unknown admin command: %s\n", sub)
		return 1
	}
	req.Caller = ident.PrincipalFromSeed(*seed).Hex()
	return doRequest(*addr, req, stdout, stderr)
}
