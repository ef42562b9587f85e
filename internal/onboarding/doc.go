// Package onboarding resolves which onboarding input is still missing and
// projects that decision into the numbered step contract shown to the
// operator.
//
// ResolvePhase is a pure function of the flags collected for the current
// tick. It never consults history, so re-running it after a crash yields the
// same phase. Build turns the resolved phase (through a legacy step pointer)
// into an ir.OnboardingContract and freezes the contract once setup is
// complete or the task has ended.
package onboarding
