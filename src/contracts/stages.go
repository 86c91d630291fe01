package contracts

// Stage names of the build pipeline. The core stages run in fixed order and
// the sequence stops at the first failing stage; outcome stages run after
// the verdict is decided and can never change it.
const (
	StageSetup    = "setup"
	StageTest     = "test"
	StageDeploy   = "deploy"
	StageSuccess  = "success"
	StageFailure  = "failure"
	StageFixed    = "fixed"
	StageBroken   = "broken"
	StageComplete = "complete"
)

// CoreStages is the fixed stage sequence every build runs.
var CoreStages = []string{StageSetup, StageTest, StageDeploy}
