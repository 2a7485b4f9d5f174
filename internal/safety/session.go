package safety

// session is a UTC hour window; end is exclusive and may wrap past midnight.
type session struct {
	start, end int
}

var sessions = map[string]session{
	"sydney":  {21, 6},
	"tokyo":   {0, 9},
	"london":  {8, 17},
	"newyork": {13, 22},
}

func (s session) contains(hour int) bool {
	if s.start < s.end {
		return hour >= s.start && hour < s.end
	}
	return hour >= s.start || hour < s.end
}
