package domain

// Level is a progression tier derived from accumulated XP.
type Level int

const (
	LevelNewbie Level = iota + 1
	LevelExplorer
	LevelStrategist
	LevelExpert
	LevelMaster
)

var levelThresholds = [...]struct {
	level Level
	minXP int64
	name  string
}{
	{LevelNewbie, 0, "Newbie"},
	{LevelExplorer, 500, "Explorer"},
	{LevelStrategist, 1500, "Strategist"},
	{LevelExpert, 4000, "Expert"},
	{LevelMaster, 10000, "Master"},
}

// LevelForXP returns the highest level whose threshold xp has reached.
func LevelForXP(xp int64) Level {
	level := LevelNewbie
	for _, t := range levelThresholds {
		if xp >= t.minXP {
			level = t.level
		}
	}
	return level
}

// Valid reports whether l is one of the five defined levels.
func (l Level) Valid() bool {
	return l >= LevelNewbie && l <= LevelMaster
}

// Threshold returns the minimum XP of the level.
func (l Level) Threshold() int64 {
	if !l.Valid() {
		return 0
	}
	return levelThresholds[l-1].minXP
}

// Next returns the following level, or false at Master.
func (l Level) Next() (Level, bool) {
	if !l.Valid() || l == LevelMaster {
		return l, false
	}
	return l + 1, true
}

func (l Level) String() string {
	if !l.Valid() {
		return "Unknown"
	}
	return levelThresholds[l-1].name
}

// Skill is a capability unlocked at a given account level.
type Skill struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level Level  `json:"level"`
}

// Skills lists every unlockable skill in unlock order.
var Skills = []Skill{
	{ID: "analytics", Name: "Move Analytics", Level: LevelExplorer},
	{ID: "defi", Name: "DeFi Strategy", Level: LevelStrategist},
	{ID: "mev", Name: "MEV Protection", Level: LevelExpert},
	{ID: "signals", Name: "Alpha Signals", Level: LevelMaster},
}

// SkillsForLevel returns the ids of the skills unlocked at level l.
func SkillsForLevel(l Level) []string {
	ids := []string{}
	for _, s := range Skills {
		if l >= s.Level {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
