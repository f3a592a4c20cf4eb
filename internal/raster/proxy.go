package raster

import "github.com/mohammed-shakir/h3-raster-store/internal/mapper"

// proxy forwards all access to a Service without buffering.
type proxy struct {
	svc     Service
	mapper  mapper.Mapper
	factory *Factory
}

// ServiceOf returns the data service behind a proxy raster.
func ServiceOf(r Raster) (Service, bool) {
	p, ok := r.(*proxy)
	if !ok {
		return nil, false
	}
	return p.svc, true
}

func (p *proxy) Format() Format                { return p.svc.Format() }
func (p *proxy) NumberOfBands() int            { return p.svc.NumberOfBands() }
func (p *proxy) NumberOfRows() int             { return p.svc.NumberOfRows() }
func (p *proxy) NumberOfColumns() int          { return p.svc.NumberOfColumns() }
func (p *proxy) RadiometricResolutions() []int { return p.svc.RadiometricResolutions() }
func (p *proxy) Mapper() mapper.Mapper         { return p.mapper }
func (p *proxy) Factory() *Factory             { return p.factory }

func (p *proxy) Value(row, col, band int) uint64 {
	return p.svc.Value(row, col, band)
}

func (p *proxy) SetValue(row, col, band int, v uint64) {
	p.svc.SetValue(row, col, band, v)
}

func (p *proxy) FloatValue(row, col, band int) float64 {
	return p.svc.FloatValue(row, col, band)
}

func (p *proxy) SetFloatValue(row, col, band int, v float64) {
	p.svc.SetFloatValue(row, col, band, v)
}
