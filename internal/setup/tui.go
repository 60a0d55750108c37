// Package setup is the interactive wizard that writes a sandbox config file.
package setup

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/ohikava/token-sandbox/config"
)

// DefaultFile is where the wizard saves unless told otherwise.
const DefaultFile = "sandbox.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers are the raw wizard inputs.
type Answers struct {
	TokenSupply  string
	EthLiquidity string
	Decimals     string
	GasPrice     string

	Addr     string
	LogLevel string

	StateFile    string
	JSONLPath    string
	WALDir       string
	KafkaBrokers string
	KafkaTopic   string
	PostgresDSN  string
}

// DefaultAnswers prefills the wizard from the stock configuration.
func DefaultAnswers() Answers {
	d := config.Default()
	return Answers{
		TokenSupply:  d.TokenSupply.String(),
		EthLiquidity: d.EthLiquidity.String(),
		Decimals:     strconv.Itoa(int(d.Decimals)),
		GasPrice:     d.GasPrice.String(),
		Addr:         d.Addr,
		LogLevel:     d.LogLevel,
		StateFile:    "sandbox.state.json",
		WALDir:       "./wal/trades",
		KafkaTopic:   d.TradeLog.KafkaTopic,
	}
}

// Config converts the answers into a validated configuration.
func (a Answers) Config() (config.Config, error) {
	cfg := config.Default()

	var err error
	if cfg.TokenSupply, err = decimal.NewFromString(strings.TrimSpace(a.TokenSupply)); err != nil {
		return config.Config{}, fmt.Errorf("token supply: %w", err)
	}
	if cfg.EthLiquidity, err = decimal.NewFromString(strings.TrimSpace(a.EthLiquidity)); err != nil {
		return config.Config{}, fmt.Errorf("eth liquidity: %w", err)
	}
	if cfg.GasPrice, err = decimal.NewFromString(strings.TrimSpace(a.GasPrice)); err != nil {
		return config.Config{}, fmt.Errorf("gas price: %w", err)
	}
	decimals, err := strconv.ParseInt(strings.TrimSpace(a.Decimals), 10, 32)
	if err != nil {
		return config.Config{}, fmt.Errorf("decimals: %w", err)
	}
	cfg.Decimals = int32(decimals)

	if a.Addr != "" {
		cfg.Addr = a.Addr
	}
	if a.LogLevel != "" {
		cfg.LogLevel = a.LogLevel
	}
	cfg.StateFile = strings.TrimSpace(a.StateFile)
	cfg.TradeLog.JSONLPath = strings.TrimSpace(a.JSONLPath)
	cfg.TradeLog.WALDir = strings.TrimSpace(a.WALDir)
	cfg.TradeLog.PostgresDSN = strings.TrimSpace(a.PostgresDSN)
	for _, b := range strings.Split(a.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.TradeLog.KafkaBrokers = append(cfg.TradeLog.KafkaBrokers, b)
		}
	}
	if t := strings.TrimSpace(a.KafkaTopic); t != "" {
		cfg.TradeLog.KafkaTopic = t
	}

	return cfg, cfg.Validate()
}

func header(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("TOKEN SANDBOX SETUP"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI walks through the wizard and saves the result to path.
func RunTUI(path string) error {
	if path == "" {
		path = DefaultFile
	}
	a := DefaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TOKEN SANDBOX SETUP"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Configure a local constant-product pool.\n"))

	fmt.Println(stepStyle.Render("STEP 1: POOL"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Token supply").
				Description("Initial token reserve").
				Value(&a.TokenSupply).
				Validate(validatePositive),
			huh.NewInput().
				Title("ETH liquidity").
				Description("Initial ETH reserve").
				Value(&a.EthLiquidity).
				Validate(validatePositive),
			huh.NewInput().
				Title("Decimals").
				Description("Fixed-point precision (0-36)").
				Value(&a.Decimals).
				Validate(validateDecimals),
			huh.NewInput().
				Title("Gas price").
				Value(&a.GasPrice).
				Validate(validateNonNegative),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 2: SERVER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&a.Addr),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Info", "info"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&a.LogLevel),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 3: PERSISTENCE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("State file").
				Description("Loaded on start, saved on shutdown. Empty disables").
				Value(&a.StateFile),
			huh.NewInput().
				Title("Trade WAL directory").
				Description("Lets the trade stream resume. Empty disables").
				Value(&a.WALDir),
			huh.NewInput().
				Title("Trade JSONL file").
				Description("Empty disables").
				Value(&a.JSONLPath),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 4: INTEGRATIONS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Kafka brokers").
				Description("Comma separated, empty disables").
				Value(&a.KafkaBrokers),
			huh.NewInput().
				Title("Kafka topic").
				Value(&a.KafkaTopic),
			huh.NewInput().
				Title("Postgres DSN").
				Description("Empty disables").
				Value(&a.PostgresDSN).
				EchoMode(huh.EchoModePassword),
		),
	).Run()
	if err != nil {
		return err
	}

	cfg, err := a.Config()
	if err != nil {
		return err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Pool: %s tokens / %s ETH\nDecimals: %d\nListen: %s\nState file: %s\n",
		cfg.TokenSupply, cfg.EthLiquidity, cfg.Decimals, cfg.Addr, orNone(cfg.StateFile),
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := config.Write(path, cfg); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	time.Sleep(time.Second) // leave the message on screen
	return nil
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateNonNegative(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateDecimals(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 || n > 36 {
		return fmt.Errorf("must be between 0 and 36")
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
