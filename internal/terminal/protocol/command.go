package protocol

type CommandType string

const (
	CommandGetBars         CommandType = "GET_BARS"
	CommandGetPrice        CommandType = "GET_PRICE"
	CommandGetAccount      CommandType = "GET_ACCOUNT"
	CommandGetPositions    CommandType = "GET_POSITIONS"
	CommandGetSymbolInfo   CommandType = "GET_SYMBOL_INFO"
	CommandOpenPosition    CommandType = "OPEN_POSITION"
	CommandClosePosition   CommandType = "CLOSE_POSITION"
	CommandModifyPosition  CommandType = "MODIFY_POSITION"
	CommandCloseAll        CommandType = "CLOSE_ALL"
	CommandCloseByStrategy CommandType = "CLOSE_BY_STRATEGY"
	CommandCloseBySymbol   CommandType = "CLOSE_BY_SYMBOL"
	CommandCloseProfitable CommandType = "CLOSE_PROFITABLE"
	CommandCloseLosing     CommandType = "CLOSE_LOSING"
	CommandPing            CommandType = "PING"
)

// AllCommandTypes is the closed set of commands the terminal understands.
// Handler tables are checked against it.
var AllCommandTypes = []CommandType{
	CommandGetBars,
	CommandGetPrice,
	CommandGetAccount,
	CommandGetPositions,
	CommandGetSymbolInfo,
	CommandOpenPosition,
	CommandClosePosition,
	CommandModifyPosition,
	CommandCloseAll,
	CommandCloseByStrategy,
	CommandCloseBySymbol,
	CommandCloseProfitable,
	CommandCloseLosing,
	CommandPing,
}

func (c CommandType) Valid() bool {
	for _, t := range AllCommandTypes {
		if t == c {
			return true
		}
	}
	return false
}

// Mutating commands change terminal state; the terminal replays the cached
// reply when one of them arrives again with the same request id.
func (c CommandType) Mutating() bool {
	switch c {
	case CommandOpenPosition, CommandClosePosition, CommandModifyPosition,
		CommandCloseAll, CommandCloseByStrategy, CommandCloseBySymbol,
		CommandCloseProfitable, CommandCloseLosing:
		return true
	}
	return false
}
