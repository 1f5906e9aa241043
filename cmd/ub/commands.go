package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"UB-Client/internal/bulletin"
	"UB-Client/internal/config"
	"UB-Client/internal/wallet"
	"UB-Client/internal/web3"
	"UB-Client/internal/web3/provider"
	"UB-Client/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"golang.org/x/term"
)

type command func(ctx context.Context, args []string) error

var commands = map[string]command{
	"status":    runStatus,
	"post":      runPost,
	"posts":     runPosts,
	"alias":     runAlias,
	"price":     runPrice,
	"verify":    runVerify,
	"wallet":    runWallet,
	"feedback":  runFeedback,
	"subscribe": runSubscribe,
	"type":      runType,
}

var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin

	// dial opens the chain backend; replaced in tests.
	dial = dialRegistry
	// loadConfig reads the CLI configuration; replaced in tests.
	loadConfig = func() (*config.Config, error) {
		cfg, _, err := config.LoadFromEnv()
		return cfg, err
	}
)

func dialRegistry(ctx context.Context, cfg config.ChainConfig) (web3.Backend, []bulletin.Option, func(), error) {
	registry, err := provider.NewRegistry(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	target, err := registry.Default()
	if err != nil {
		registry.Close()
		return nil, nil, nil, err
	}
	return target.Client, target.ReaderOptions(), registry.Close, nil
}

// session bundles what every command needs.
type session struct {
	cfg    *config.Config
	client *bulletin.Client
	close  func()
}

func open(ctx context.Context, needAccount bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// 命令行默认只输出警告，避免干扰结果。
	logCfg := cfg.Log
	logCfg.Level = "warn"
	logCfg.OutputPaths = []string{"stderr"}
	if err := logger.Init(logCfg); err != nil {
		return nil, err
	}

	backend, opts, closeFn, err := dial(ctx, cfg.Chain)
	if err != nil {
		return nil, err
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Chain.TimeoutSeconds)*time.Second)
	defer cancel()
	reader, err := bulletin.NewReader(timeoutCtx, backend, opts...)
	if err != nil {
		closeFn()
		return nil, err
	}

	client := bulletin.NewClient(reader, bulletin.WithScrypt(cfg.Wallet.Scrypt()))
	account, err := loadAccount(cfg.Wallet)
	switch {
	case err == nil:
		client.SetAccount(account)
	case errors.Is(err, wallet.ErrNoAccount):
		if needAccount {
			closeFn()
			return nil, bulletin.ErrAccountRequired
		}
	default:
		closeFn()
		return nil, err
	}
	return &session{cfg: cfg, client: client, close: closeFn}, nil
}

func loadAccount(cfg config.WalletConfig) (*wallet.Account, error) {
	src := cfg.Source()
	if src.PrivateKey == "" && src.Password == "" && src.KeystorePath != "" {
		if _, err := os.Stat(src.KeystorePath); err == nil {
			password, err := promptPassword("Keystore password: ")
			if err != nil {
				return nil, err
			}
			src.Password = password
		}
	}
	return src.Load()
}

// promptPassword reads without echo on a terminal, a plain line otherwise.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(data), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseIndex(raw string) (uint64, error) {
	idx, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	return idx, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func formatPOL(wei *big.Int) string {
	ether := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return ether.Text('f', -1)
}

func exactArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: ub %s", usage)
	}
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	if err := exactArgs(args, 0, "status"); err != nil {
		return err
	}
	s, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()
	c := s.client

	total, err := c.TotalPosts(ctx)
	if err != nil {
		return err
	}
	status, err := c.UserStatus(ctx)
	if err != nil {
		return err
	}
	docs, err := c.DocumentationURL(ctx)
	if err != nil {
		return err
	}
	ui, err := c.UIPackageURL(ctx)
	if err != nil {
		return err
	}

	fields := []field{
		{"UB contract", c.BulletinAddress().Hex()},
		{"Total posts", strconv.FormatUint(total, 10)},
		{"User status", status},
		{"Documentation", docs},
		{"UI package", ui},
	}
	if account := c.Account(); account != nil {
		fields = append(fields, field{"Account", account.Address().Hex()})
	}
	if c.Connected() {
		manager, err := c.ManagerAlias(ctx)
		if err != nil {
			return err
		}
		price, err := c.SubscriptionPrice(ctx)
		if err != nil {
			return err
		}
		fields = append(fields,
			field{"ETC contract", c.ETCAddress().Hex()},
			field{"Manager", manager},
			field{"Price / period", formatPOL(price) + " POL"},
		)
	} else {
		fields = append(fields, field{"ETC contract", "unknown"})
	}
	fmt.Fprintln(stdout, renderFields(fields))
	return nil
}

func runPost(ctx context.Context, args []string) error {
	if err := exactArgs(args, 1, "post <index>"); err != nil {
		return err
	}
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	s, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	post, err := s.client.PostAtIndex(ctx, idx)
	if err != nil {
		return err
	}
	if post == nil {
		fmt.Fprintln(stdout, renderRestricted(idx))
		return nil
	}
	fmt.Fprintln(stdout, renderPost(post))
	return nil
}

func runPosts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("posts", flag.ContinueOnError)
	from := fs.Uint64("from", 0, "first index")
	to := fs.Uint64("to", 0, "end index, exclusive; 0 means the total")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	end := *to
	if end == 0 {
		if end, err = s.client.TotalPosts(ctx); err != nil {
			return err
		}
	}
	for idx := *from; idx < end; idx++ {
		post, err := s.client.PostAtIndex(ctx, idx)
		if errors.Is(err, bulletin.ErrIndexTooHigh) {
			break
		}
		if err != nil {
			return err
		}
		if post == nil {
			fmt.Fprintln(stdout, renderRestricted(idx))
			continue
		}
		fmt.Fprintln(stdout, renderPost(post))
	}
	return nil
}

func runAlias(ctx context.Context, args []string) error {
	if err := exactArgs(args, 1, "alias <address>"); err != nil {
		return err
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	s, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	alias, err := s.client.AuthorAlias(ctx, addr)
	if err != nil {
		return err
	}
	if alias == "" {
		alias = mutedStyle.Render("(no alias)")
	}
	fmt.Fprintln(stdout, alias)
	return nil
}

func runPrice(ctx context.Context, args []string) error {
	if err := exactArgs(args, 0, "price"); err != nil {
		return err
	}
	s, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	price, err := s.client.SubscriptionPrice(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s wei (%s POL) per period\n", price, formatPOL(price))
	return nil
}

func runVerify(ctx context.Context, args []string) error {
	if err := exactArgs(args, 1, "verify <address>"); err != nil {
		return err
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	s, err := open(ctx, false)
	if err != nil {
		return err
	}
	defer s.close()

	ok, err := s.client.VerifySubscription(ctx, addr)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(stdout, renderSuccess("subscribed"))
	} else {
		fmt.Fprintln(stdout, "not subscribed")
	}
	return nil
}

func runWallet(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ub wallet new|import|address")
	}
	switch args[0] {
	case "new":
		return walletNew(args[1:])
	case "import":
		return walletImport(args[1:])
	case "address":
		return walletAddress(ctx, args[1:])
	default:
		return fmt.Errorf("unknown wallet command %q", args[0])
	}
}

func walletNew(args []string) error {
	fs := flag.NewFlagSet("wallet new", flag.ContinueOnError)
	out := fs.String("out", "", "keystore path, defaults to wallet.keystore_path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	account, err := wallet.New()
	if err != nil {
		return err
	}
	return saveAccount(cfg.Wallet, account, *out)
}

func walletImport(args []string) error {
	fs := flag.NewFlagSet("wallet import", flag.ContinueOnError)
	out := fs.String("out", "", "keystore path, defaults to wallet.keystore_path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ub wallet import [-out path] <private-key-hex>")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	account, err := wallet.Import(fs.Arg(0))
	if err != nil {
		return err
	}
	return saveAccount(cfg.Wallet, account, *out)
}

func saveAccount(cfg config.WalletConfig, account *wallet.Account, out string) error {
	path := out
	if path == "" {
		path = cfg.KeystorePath
	}
	if path == "" {
		return errors.New("no keystore path: set wallet.keystore_path or pass -out")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	password := cfg.Password()
	if password == "" {
		var err error
		if password, err = promptPassword("New keystore password: "); err != nil {
			return err
		}
	}
	if err := account.SaveFile(path, password, cfg.Scrypt()); err != nil {
		return err
	}
	logger.Audit().Info("keystore written", "address", account.Address().Hex(), "path", path)
	fmt.Fprintf(stdout, "%s %s\n", renderSuccess("saved"), account.Address().Hex())
	return nil
}

func walletAddress(_ context.Context, args []string) error {
	if err := exactArgs(args, 0, "wallet address"); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	account, err := loadAccount(cfg.Wallet)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, account.Address().Hex())
	return nil
}

func runFeedback(ctx context.Context, args []string) error {
	message := strings.TrimSpace(strings.Join(args, " "))
	if message == "" {
		return errors.New("usage: ub feedback <message>")
	}
	s, err := open(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	tx, err := s.client.SubmitFeedback(ctx, message)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s\n", renderSuccess("sent"), tx.Hash().Hex())
	return nil
}

func runSubscribe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("subscribe", flag.ContinueOnError)
	wait := fs.Bool("wait", false, "wait until the transaction is mined")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ub subscribe [-wait] <periods>")
	}
	periods, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid periods %q", fs.Arg(0))
	}
	s, err := open(ctx, true)
	if err != nil {
		return err
	}
	defer s.close()

	session, err := s.client.Session()
	if err != nil {
		return err
	}
	tx, err := session.Subscribe(ctx, periods)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s %s (%s POL)\n", renderSuccess("sent"), tx.Hash().Hex(), formatPOL(tx.Value()))
	if !*wait {
		return nil
	}
	receipt, err := session.WaitMined(ctx, tx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s in block %s\n", renderSuccess("mined"), receipt.BlockNumber)
	return nil
}

func runType(_ context.Context, args []string) error {
	if err := exactArgs(args, 1, "type <bits>"); err != nil {
		return err
	}
	bits, err := strconv.ParseUint(strings.TrimSpace(args[0]), 0, 64)
	if err != nil {
		return fmt.Errorf("invalid post type %q", args[0])
	}
	fmt.Fprintln(stdout, bulletin.PostTypeString(bits))
	return nil
}
