package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// A maxPopulation of zero disables the population cap.
func NewDefaultRulesEngine(maxPopulation uint32) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(LineageIntegrityRule())
	engine.Register(PopulationCapRule(maxPopulation))
	return engine
}
