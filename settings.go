package tutorsite

import (
	"context"
	"fmt"
	"sort"

	"github.com/teachwithpriscilla/tutorsite/store"
)

// SettingKey identifies one editable piece of site copy. The set is fixed
// at compile time; every key carries a default so the public site renders
// even when the settings table is empty or unreachable.
type SettingKey string

const (
	SettingHeroTitle          SettingKey = "hero_title"
	SettingHeroSubtitle       SettingKey = "hero_subtitle"
	SettingHeroCTAText        SettingKey = "hero_cta_text"
	SettingHeroCTAURL         SettingKey = "hero_cta_url"
	SettingFeaturedHeading    SettingKey = "featured_heading"
	SettingFeaturedSubheading SettingKey = "featured_subheading"
	SettingWhyTeachHeading    SettingKey = "why_teach_heading"
	SettingWhyTeachBody       SettingKey = "why_teach_body"
	SettingMissionQuote       SettingKey = "mission_quote"
	SettingAboutHeading       SettingKey = "about_heading"
	SettingAboutIntro         SettingKey = "about_intro"
	SettingTeachingYears      SettingKey = "teaching_experience_years"
	SettingStudentsCount      SettingKey = "students_taught_count"
	SettingNewsletterHeading  SettingKey = "newsletter_heading"
	SettingNewsletterBlurb    SettingKey = "newsletter_blurb"
)

var settingDefaults = map[SettingKey]string{
	SettingHeroTitle:          "Welcome to My Teaching Journey",
	SettingHeroSubtitle:       "Join me as I share insights, resources, and stories from teaching English to non-native kids and beginners. Every lesson is an adventure, and every breakthrough is a celebration.",
	SettingHeroCTAText:        "Book a Lesson",
	SettingHeroCTAURL:         "https://preply.com/en/tutor/",
	SettingFeaturedHeading:    "Latest from the Blog",
	SettingFeaturedSubheading: "Fresh insights and teaching tips",
	SettingWhyTeachHeading:    "Why I Teach",
	SettingWhyTeachBody:       "Teaching English to young learners isn't just my profession, it's my passion. I believe that language learning should be joyful, engaging, and tailored to each child's unique needs.",
	SettingMissionQuote:       "Through patience, creativity, and lots of encouragement, I help children build confidence in their English skills while having fun along the way.",
	SettingAboutHeading:       "About Me",
	SettingAboutIntro:         "I'm an English tutor specialising in young learners and beginners of all ages.",
	SettingTeachingYears:      "5",
	SettingStudentsCount:      "200",
	SettingNewsletterHeading:  "Join the Newsletter",
	SettingNewsletterBlurb:    "Teaching tips and new resources, straight to your inbox. No spam.",
}

// SettingLabels names each key for the admin settings form.
var settingLabels = map[SettingKey]string{
	SettingHeroTitle:          "Hero title",
	SettingHeroSubtitle:       "Hero subtitle",
	SettingHeroCTAText:        "Hero button text",
	SettingHeroCTAURL:         "Hero button link",
	SettingFeaturedHeading:    "Featured post heading",
	SettingFeaturedSubheading: "Featured post subheading",
	SettingWhyTeachHeading:    "\"Why I teach\" heading",
	SettingWhyTeachBody:       "\"Why I teach\" body",
	SettingMissionQuote:       "Mission quote",
	SettingAboutHeading:       "About page heading",
	SettingAboutIntro:         "About page intro",
	SettingTeachingYears:      "Years of teaching experience",
	SettingStudentsCount:      "Students taught",
	SettingNewsletterHeading:  "Newsletter heading",
	SettingNewsletterBlurb:    "Newsletter blurb",
}

// SettingKeys returns every known key in a stable order for form rendering.
func SettingKeys() []SettingKey {
	keys := make([]SettingKey, 0, len(settingDefaults))
	for k := range settingDefaults {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// KnownSettingKey reports whether key is part of the registry.
func KnownSettingKey(key string) bool {
	_, ok := settingDefaults[SettingKey(key)]
	return ok
}

// SettingLabel returns the human-readable name for a key.
func SettingLabel(key SettingKey) string {
	if l, ok := settingLabels[key]; ok {
		return l
	}
	return string(key)
}

// DefaultSettings returns a fresh copy of the compiled-in defaults.
func DefaultSettings() map[SettingKey]string {
	out := make(map[SettingKey]string, len(settingDefaults))
	for k, v := range settingDefaults {
		out[k] = v
	}
	return out
}

// EffectiveSettings merges stored values over the defaults. The returned map
// is always complete and usable: a gateway failure leaves the defaults in
// place and is reported only so the call site can log it. Stored keys
// outside the registry are ignored.
func EffectiveSettings(ctx context.Context, s store.Store) (map[SettingKey]string, error) {
	vals := DefaultSettings()
	stored, err := s.AllSettings(ctx)
	if err != nil {
		return vals, fmt.Errorf("load site settings: %w", err)
	}
	for k, v := range stored {
		if KnownSettingKey(k) {
			vals[SettingKey(k)] = v
		}
	}
	return vals, nil
}

// ChangedSettings returns the entries in submitted whose value differs from
// the value the operator initially loaded. Keys absent from submitted are
// left alone, so a partial form only ever writes what it carries.
func ChangedSettings(loaded, submitted map[SettingKey]string) map[SettingKey]string {
	changed := make(map[SettingKey]string)
	for k, v := range submitted {
		if !KnownSettingKey(string(k)) {
			continue
		}
		if orig, ok := loaded[k]; !ok || orig != v {
			changed[k] = v
		}
	}
	return changed
}

// SaveSettings writes each changed key, one write per key in stable order,
// and returns how many writes happened. The first failing write aborts the
// rest: the save is all-or-nothing in its reporting, not transactional.
func SaveSettings(ctx context.Context, s store.Store, changed map[SettingKey]string) (int, error) {
	keys := make([]SettingKey, 0, len(changed))
	for k := range changed {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	written := 0
	for _, k := range keys {
		if err := s.SetSetting(ctx, string(k), changed[k]); err != nil {
			return written, fmt.Errorf("save setting %s: %w", k, err)
		}
		written++
	}
	return written, nil
}
