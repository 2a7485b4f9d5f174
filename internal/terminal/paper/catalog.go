package paper

import (
	"os"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"

	"gopkg.in/yaml.v3"
)

type Instrument struct {
	models.SymbolInfo `yaml:",inline"`
	Price             float64 `yaml:"price"`
	SpreadPoints      float64 `yaml:"spread_points"`
}

type Catalog struct {
	Instruments []Instrument `yaml:"instruments"`
}

func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "Не удалось прочитать каталог %s", path)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "Некорректный каталог инструментов", err)
	}
	seen := make(map[string]bool)
	for _, in := range c.Instruments {
		if in.Symbol == "" || in.Point <= 0 || in.Price <= 0 || in.VolumeStep <= 0 {
			return Catalog{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "Неполное описание инструмента %q", in.Symbol)
		}
		if seen[in.Symbol] {
			return Catalog{}, errors.Newf(errors.ErrCodeInvalidConfiguration, "Инструмент %s описан дважды", in.Symbol)
		}
		seen[in.Symbol] = true
	}
	return c, nil
}

func DefaultCatalog() Catalog {
	fx := func(symbol string, price float64) Instrument {
		return Instrument{
			SymbolInfo: models.SymbolInfo{
				Symbol:       symbol,
				Point:        0.00001,
				Digits:       5,
				VolumeMin:    0.01,
				VolumeMax:    100,
				VolumeStep:   0.01,
				PointValue:   1,
				MarginPerLot: 1000,
			},
			Price:        price,
			SpreadPoints: 12,
		}
	}
	return Catalog{Instruments: []Instrument{
		fx("EURUSD", 1.0850),
		fx("GBPUSD", 1.2700),
		fx("AUDUSD", 0.6550),
		{
			SymbolInfo: models.SymbolInfo{
				Symbol:       "USDJPY",
				Point:        0.001,
				Digits:       3,
				VolumeMin:    0.01,
				VolumeMax:    100,
				VolumeStep:   0.01,
				PointValue:   0.67,
				MarginPerLot: 1000,
			},
			Price:        150.00,
			SpreadPoints: 15,
		},
		{
			SymbolInfo: models.SymbolInfo{
				Symbol:       "XAUUSD",
				Point:        0.01,
				Digits:       2,
				VolumeMin:    0.01,
				VolumeMax:    50,
				VolumeStep:   0.01,
				PointValue:   1,
				MarginPerLot: 2000,
			},
			Price:        2300,
			SpreadPoints: 30,
		},
	}}
}
