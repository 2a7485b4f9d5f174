package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"tradebridge/internal/models"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func (suite *ConfigTestSuite) write(body string) string {
	path := filepath.Join(suite.dir, "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sample = `
terminal:
  command_url: ws://10.0.0.5:9000/command
  telemetry_url: ws://10.0.0.5:9000/telemetry
  auth_token: ${BRIDGE_TEST_TOKEN}
dispatcher:
  timeout: 2s
  max_retries: 1
safety:
  max_positions: 4
  correlation_threshold: 0.8
  correlations:
    - a: EURUSD
      b: GBPUSD
      value: 0.91
  sessions: [london, newyork]
  news:
    enabled: true
    pause_before: 15m
    events:
      - currency: USD
        title: NFP
        at: "2026-10-02T12:30:00Z"
strategies:
  - id: ema-cross
    symbols: [EURUSD, GBPUSD]
    timeframe: M15
    cooldown_seconds: 900
    entry:
      logic: AND
      conditions:
        - indicator: ema_20
          operator: crosses_above
          reference: ema_50
        - indicator: rsi_14
          operator: in_range
          range: [30, 70]
          timeframe: H1
    stop_loss:
      mode: atr
      value: 1.5
    take_profit:
      mode: rr_ratio
      value: 2
    risk:
      sizing: percent_risk
      risk_percent: 1
      max_positions: 2
`

func (suite *ConfigTestSuite) TestLoadFile() {
	suite.T().Setenv("BRIDGE_TEST_TOKEN", "s3cret")

	cfg, err := Load(suite.write(sample))
	suite.Require().NoError(err)

	suite.Equal("ws://10.0.0.5:9000/command", cfg.Terminal.CommandURL)
	suite.Equal("s3cret", cfg.Terminal.AuthToken)
	suite.Equal(2*time.Second, cfg.Dispatcher.Timeout)
	suite.Equal(1, cfg.Dispatcher.MaxRetries)
	suite.Equal(64, cfg.Dispatcher.QueueSize)
	suite.Equal(5*time.Second, cfg.Registry.Interval)
	suite.Equal(3, cfg.Registry.FailureThreshold)
	suite.Equal(15*time.Second, cfg.Monitor.TickInterval)

	suite.Require().Len(cfg.Safety.Correlations, 1)
	suite.Equal(CorrelationPair{A: "EURUSD", B: "GBPUSD", Value: 0.91}, cfg.Safety.Correlations[0])
	suite.Equal([]string{"london", "newyork"}, cfg.Safety.Sessions)
	suite.Require().Len(cfg.Safety.News.Events, 1)
	suite.Equal(time.Date(2026, 10, 2, 12, 30, 0, 0, time.UTC), cfg.Safety.News.Events[0].Time)
	suite.Equal(15*time.Minute, cfg.Safety.News.PauseBefore)

	suite.Require().Len(cfg.Strategies, 1)
	s := cfg.Strategies[0]
	suite.Equal("ema-cross", s.ID)
	suite.Equal(models.TimeframeM15, s.Timeframe)
	suite.Equal(15*time.Minute, s.Cooldown())
	suite.Equal(models.OperatorCrossesAbove, s.Entry.Conditions[0].Operator)
	suite.Equal("ema_50", s.Entry.Conditions[0].Reference)
	suite.Equal([]float64{30, 70}, s.Entry.Conditions[1].Range)
	suite.Equal(models.StopModeATR, s.StopLoss.Mode)
	suite.Equal(models.SizingPercentRisk, s.Risk.Sizing)

	suite.NoError(cfg.Validate())
}

func (suite *ConfigTestSuite) TestEnvOverride() {
	suite.T().Setenv("TRADEBRIDGE_DISPATCHER_MAX_RETRIES", "7")

	cfg, err := Load(suite.write(sample))
	suite.Require().NoError(err)
	suite.Equal(7, cfg.Dispatcher.MaxRetries)
}

func (suite *ConfigTestSuite) TestDuplicateStrategy() {
	cfg, err := Load(suite.write(sample))
	suite.Require().NoError(err)
	cfg.Strategies = append(cfg.Strategies, cfg.Strategies[0])
	suite.Error(cfg.Validate())
}

func (suite *ConfigTestSuite) TestInvalidStrategy() {
	cfg, err := Load(suite.write(sample))
	suite.Require().NoError(err)
	cfg.Strategies[0].Timeframe = "M7"
	suite.Error(cfg.Validate())
}

func (suite *ConfigTestSuite) TestBadNewsTime() {
	_, err := Load(suite.write(`
safety:
  news:
    events:
      - currency: USD
        at: tomorrow
`))
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestMissingExplicitFile() {
	_, err := Load(filepath.Join(suite.dir, "absent.yaml"))
	suite.Error(err)
}

func (suite *ConfigTestSuite) TestShippedConfig() {
	suite.T().Setenv("TRADEBRIDGE_TOKEN", "local-token")

	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	suite.Require().NoError(err)
	suite.Require().NoError(cfg.Validate())

	suite.Equal("local-token", cfg.Terminal.AuthToken)
	suite.Equal(5, cfg.Server.LockoutThreshold)
	suite.Equal(5*time.Second, cfg.Dispatcher.Timeout)
	suite.Len(cfg.Safety.Correlations, 3)
	suite.Require().Len(cfg.Strategies, 1)
	suite.Equal(models.TimeframeM15, cfg.Strategies[0].Timeframe)
	suite.Equal(models.TimeframeH1, cfg.Strategies[0].Entry.Conditions[2].Timeframe)
}
