package enums

import "fmt"

// MilestoneStatus is the state of one level inside an agent's milestone progress.
type MilestoneStatus string

const (
	MilestoneLocked        MilestoneStatus = "locked"
	MilestoneInProgress    MilestoneStatus = "in_progress"
	MilestoneCompleted     MilestoneStatus = "completed"
	MilestoneRewardClaimed MilestoneStatus = "reward_claimed"
)

var validMilestoneStatuss = []MilestoneStatus{
	MilestoneLocked,
	MilestoneInProgress,
	MilestoneCompleted,
	MilestoneRewardClaimed,
}

// String implements fmt.Stringer.
func (v MilestoneStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known MilestoneStatus.
func (v MilestoneStatus) IsValid() bool {
	for _, candidate := range validMilestoneStatuss {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseMilestoneStatus converts raw input into a MilestoneStatus.
func ParseMilestoneStatus(value string) (MilestoneStatus, error) {
	for _, candidate := range validMilestoneStatuss {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid milestone status %q", value)
}

// Unlocks reports whether a level in this status allows the next level to progress.
func (v MilestoneStatus) Unlocks() bool {
	return v == MilestoneCompleted || v == MilestoneRewardClaimed
}
