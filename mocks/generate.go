package mocks

//go:generate mockgen -destination=./mock_monitor.go -package=mocks tradebridge/internal/monitor Market,Executor,Positions
//go:generate mockgen -destination=./mock_platform.go -package=mocks tradebridge/internal/platform Reporter
