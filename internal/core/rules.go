package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(SpecRowConsistencyRule())
	engine.Register(OverrideIntegrityRule())
	engine.Register(CatalogueShapeRule())
	return engine
}
