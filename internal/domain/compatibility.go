package domain

// CompatibilityPolicy decides whether two queued participants may be paired.
// Implementations must be symmetric: Compatible(a, b) == Compatible(b, a).
type CompatibilityPolicy interface {
	Compatible(a, b *QueueEntry) bool
}

// PreferencePolicy is all-or-nothing filtering on declared preferences.
// Anything left unset is compatible with everyone.
type PreferencePolicy struct{}

func (PreferencePolicy) Compatible(a, b *QueueEntry) bool {
	if a == nil || b == nil || a.UserID == b.UserID {
		return false
	}
	if !agesOverlap(a.Preferences.AgeRange, b.Preferences.AgeRange) {
		return false
	}
	if !interestsIntersect(a.Preferences.Interests, b.Preferences.Interests) {
		return false
	}
	return acceptsGender(a, b) && acceptsGender(b, a)
}

func agesOverlap(a, b *AgeRange) bool {
	if a == nil || b == nil {
		return true
	}
	return a.Min <= b.Max && b.Min <= a.Max
}

func interestsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// acceptsGender reports whether who's gender preference admits other.
func acceptsGender(who, other *QueueEntry) bool {
	pref := who.Preferences.GenderPreference
	if pref == "" || pref == GenderAny || other.Display.Gender == "" {
		return true
	}
	return pref == other.Display.Gender
}
