package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"adhan/internal/prayer"
)

// ScheduleFile is the YAML document describing where prayer times come
// from. Fixed times apply every day; timetable rows override them for
// the dates they list.
//
//	timezone: Europe/London
//	fixed:
//	  fajr: "05:10"
//	  dhuhr: "12:20"
//	timetable:
//	  "2025-03-10":
//	    fajr: "05:02"
type ScheduleFile struct {
	Timezone  string                       `yaml:"timezone"`
	Fixed     map[string]string            `yaml:"fixed"`
	Timetable map[string]map[string]string `yaml:"timetable"`
}

// Normalize fills in missing values so partially written files still load.
func (s *ScheduleFile) Normalize() {
	s.Timezone = strings.TrimSpace(s.Timezone)
	if s.Fixed == nil {
		s.Fixed = map[string]string{}
	}
	if s.Timetable == nil {
		s.Timetable = map[string]map[string]string{}
	}
}

// Empty reports whether the file defines no times at all.
func (s *ScheduleFile) Empty() bool {
	return len(s.Fixed) == 0 && len(s.Timetable) == 0
}

// LoadSchedule reads path from fsys (nil means the OS filesystem). A
// missing file yields an empty, normalized document.
func LoadSchedule(fsys afero.Fs, path string) (*ScheduleFile, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	sf := &ScheduleFile{}
	if path == "" {
		sf.Normalize()
		return sf, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			sf.Normalize()
			return sf, nil
		}
		return nil, fmt.Errorf("read schedule %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, sf); err != nil {
		return nil, fmt.Errorf("parse schedule %s: %w", path, err)
	}
	sf.Normalize()
	return sf, nil
}

// Location resolves the zone used for schedule times. override (from the
// environment) takes precedence over the file; both empty means time.Local.
func (s *ScheduleFile) Location(override string) (*time.Location, error) {
	name := strings.TrimSpace(override)
	if name == "" {
		name = s.Timezone
	}
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

// Provider builds the prayer time source described by the file. With no
// times configured every lookup returns prayer.ErrNoSchedule.
func (s *ScheduleFile) Provider(loc *time.Location) (prayer.Provider, error) {
	fixed, err := prayer.NewFixedProvider(s.Fixed, loc)
	if err != nil {
		return nil, fmt.Errorf("fixed times: %w", err)
	}
	if len(s.Timetable) == 0 {
		return fixed, nil
	}
	var fallback prayer.Provider
	if len(s.Fixed) > 0 {
		fallback = fixed
	}
	tt, err := prayer.NewTimetableProvider(s.Timetable, loc, fallback)
	if err != nil {
		return nil, err
	}
	return tt, nil
}
