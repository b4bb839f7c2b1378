// Package xp computes experience-point awards and level standing from a
// student's lesson progress.
package xp

// levelEntry pairs a cumulative XP threshold with the title awarded once
// that threshold is reached.
type levelEntry struct {
	threshold int
	title     string
}

// Table is the fixed, process-lifetime level ladder. Index 0 is always
// reachable (threshold 0); the last entry is the terminal title.
var Table = []levelEntry{
	{0, "Newbie"},
	{50, "Curious Cat"},
	{150, "Script Kiddie"},
	{300, "Terminal Apprentice"},
	{500, "Shell Wrangler"},
	{750, "Pipe Plumber"},
	{1050, "Regex Ranger"},
	{1400, "Sysadmin Acolyte"},
	{1800, "Root Whisperer"},
	{2250, "Kernel Sage"},
	{2750, "Daemon Tamer"},
	{3300, "Syscall Sorcerer"},
	{3900, "Namespace Ninja"},
	{4550, "Container Captain"},
	{5250, "Cluster Commander"},
	{6000, "Infra Overlord"},
	{6500, "BDFL"},
}

// hintPenalties maps hints_used (capped at 3) to its multiplier penalty.
var hintPenalties = map[int]float64{0: 0.00, 1: 0.10, 2: 0.30, 3: 0.50}

const minMultiplier = 0.25

// LevelInfo is the student's standing for a given XP total.
type LevelInfo struct {
	Level        int
	Title        string
	CurrentXP    int
	LevelFloor   int
	LevelCeiling int
}

// XPInLevel returns XP earned since entering the current level.
func (l LevelInfo) XPInLevel() int { return l.CurrentXP - l.LevelFloor }

// XPForLevel returns the XP span of the current level.
func (l LevelInfo) XPForLevel() int { return l.LevelCeiling - l.LevelFloor }

// Progress returns fractional progress through the current level, in
// [0, 1]. At the terminal level (floor == ceiling) this is always 1.0.
func (l LevelInfo) Progress() float64 {
	span := l.XPForLevel()
	if span == 0 {
		return 1.0
	}
	return float64(l.XPInLevel()) / float64(span)
}

// LevelFor finds the greatest index i such that Table[i].threshold <=
// totalXP, and returns the corresponding LevelInfo.
func LevelFor(totalXP int) LevelInfo {
	level := 0
	for i, entry := range Table {
		if totalXP >= entry.threshold {
			level = i
		} else {
			break
		}
	}

	floor := Table[level].threshold
	title := Table[level].title
	ceiling := floor
	if level+1 < len(Table) {
		ceiling = Table[level+1].threshold
	}

	return LevelInfo{
		Level:        level,
		Title:        title,
		CurrentXP:    totalXP,
		LevelFloor:   floor,
		LevelCeiling: ceiling,
	}
}

// Award computes the XP earned for completing an exercise.
//
// multiplier = 1.0
//
//	+ (difficulty-1)*0.10
//	+ 0.50 if firstTry
//	- hintPenalty(hintsUsed)
//
// floored at 0.25, then XP = floor(baseXP * multiplier).
func Award(baseXP, difficulty int, firstTry bool, hintsUsed int) int {
	multiplier := 1.0
	multiplier += float64(difficulty-1) * 0.10
	if firstTry {
		multiplier += 0.50
	}

	capped := hintsUsed
	if capped > 3 {
		capped = 3
	}
	multiplier -= hintPenalties[capped]

	if multiplier < minMultiplier {
		multiplier = minMultiplier
	}

	return int(float64(baseXP) * multiplier)
}
