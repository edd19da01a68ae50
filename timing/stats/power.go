package stats

import "github.com/sarchlab/hwaccsim/timing/latency"

func domain(leakage, dynamic float64) DomainPower {
	return DomainPower{
		Leakage: Float(leakage),
		Dynamic: Float(dynamic),
		Total:   Float(leakage + dynamic),
	}
}

// perCycle turns an event count into an activity factor.
func (e *Engine) perCycle(n uint64) float64 {
	if e.cycles == 0 {
		return 0
	}
	return float64(n) / float64(e.cycles)
}

func (e *Engine) powerModel() *latency.PowerModel {
	if e.table != nil {
		return e.table.Power()
	}
	if e.config.Power != nil {
		return e.config.Power
	}
	return latency.DefaultPowerModel()
}

// summarizePower applies the coefficient model. Leakage scales with what is
// instantiated, dynamic power with activity per cycle.
func (e *Engine) summarizePower(r *Report) {
	model := e.powerModel()
	p := &r.Power
	a := &r.Area

	var fuLeak, fuDyn, fuArea float64
	for _, s := range e.fuStats {
		c := model.Unit(s.Type)
		n := float64(instances(s))
		fuLeak += n * c.LeakageMW
		fuDyn += e.perCycle(s.Ops) * (c.DynamicReadMW + c.DynamicWriteMW)
		fuArea += n * c.AreaUM2
	}
	p.FU = domain(fuLeak, fuDyn)

	var values int
	if e.graph != nil {
		values = e.graph.ValueCount()
	}
	reg := model.Register
	bits := float64(values * reg.BitsPerValue)
	issued := e.perCycle(e.sched.Issued) * float64(reg.BitsPerValue)
	p.Register = domain(
		bits*reg.LeakagePerBitMW,
		issued*(reg.ReadPerBitMW+reg.WritePerBitMW),
	)
	a.RegisterUM2 = Float(bits * reg.AreaPerBitUM2)

	spmKB := float64(r.Memory.SPMSizeKB)
	p.SPM = domain(
		spmKB*model.SPM.LeakagePerKBMW,
		e.perCycle(e.counters.SPMReads)*model.SPM.ReadPerAccessMW+
			e.perCycle(e.counters.SPMWrites)*model.SPM.WritePerAccessMW,
	)
	a.SPMUM2 = Float(spmKB * model.SPM.AreaPerKBUM2)

	cacheKB := float64(r.Memory.CacheSizeKB)
	c := &e.counters
	p.Cache = domain(
		cacheKB*model.Cache.LeakagePerKBMW,
		e.perCycle(c.CacheReadHits+c.CacheReadMisses)*model.Cache.ReadPerAccessMW+
			e.perCycle(c.CacheWriteHits+c.CacheWriteMisses)*model.Cache.WritePerAccessMW,
	)
	a.CacheUM2 = Float(cacheKB * model.Cache.AreaPerKBUM2)

	a.FUUM2 = Float(fuArea)
	a.TotalUM2 = a.FUUM2 + a.RegisterUM2 + a.SPMUM2 + a.CacheUM2
	a.TotalMM2 = a.TotalUM2 / 1e6

	p.TotalPowerMW = p.FU.Total + p.Register.Total + p.SPM.Total + p.Cache.Total

	// mW x ns is pJ.
	p.TotalEnergyNJ = p.TotalPowerMW *
		Float(float64(e.cycles)*e.config.ClockPeriodNS*1e-3)
}
