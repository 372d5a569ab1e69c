package domain

// CycleState names the steps of one claim cycle.
type CycleState string

const (
	CycleIdle           CycleState = "idle"
	CycleCheckWindow    CycleState = "check_window"
	CycleProxyCheck     CycleState = "proxy_check"
	CycleAuthenticating CycleState = "authenticating"
	CycleFetching       CycleState = "fetching"
	CycleEvaluating     CycleState = "evaluating"
	CycleClaiming       CycleState = "claiming"
	CyclePersisting     CycleState = "persisting"
)

func (s CycleState) String() string {
	return string(s)
}
