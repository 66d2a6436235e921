package theory

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed genres.yaml
var defaultGenresYAML []byte

// DefaultGenre is the profile used for unknown or empty genre names
const DefaultGenre = "default"

// Extensions holds seventh-chord probabilities by chord function
type Extensions struct {
	Dominant float64 `yaml:"dominant" json:"dominant"`
	Major    float64 `yaml:"major" json:"major"`
	Minor    float64 `yaml:"minor" json:"minor"`
}

// Progression is a common roman-numeral loop with a relative weight
type Progression struct {
	Numerals []string `yaml:"numerals" json:"numerals"`
	Weight   float64  `yaml:"weight" json:"weight"`
}

// GenreProfile carries the genre priors the corrector consults
type GenreProfile struct {
	Name                         string        `yaml:"-" json:"name"`
	SecondaryDominantProbability float64       `yaml:"secondary_dominant_probability" json:"secondary_dominant_probability"`
	Extensions                   Extensions    `yaml:"extensions" json:"extensions"`
	Cadences                     []string      `yaml:"cadences" json:"cadences"`
	Predominant                  string        `yaml:"predominant" json:"predominant"`
	Progressions                 []Progression `yaml:"progressions" json:"progressions"`
}

// PrefersCadence reports whether the profile lists the cadence
func (g GenreProfile) PrefersCadence(name string) bool {
	for _, c := range g.Cadences {
		if c == name {
			return true
		}
	}
	return false
}

// GenreLookup resolves a genre name to its profile. Implementations fall back
// to the default profile for unknown names.
type GenreLookup interface {
	Lookup(name string) GenreProfile
	Names() []string
}

// GenreLibrary is a GenreLookup backed by YAML documents
type GenreLibrary struct {
	profiles map[string]GenreProfile
}

type genreDocument struct {
	Genres map[string]GenreProfile `yaml:"genres"`
}

// DefaultGenres returns the built-in genre profiles
func DefaultGenres() *GenreLibrary {
	lib, err := ParseGenres(defaultGenresYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in genre profiles: %v", err))
	}
	return lib
}

// ParseGenres reads a genre YAML document
func ParseGenres(data []byte) (*GenreLibrary, error) {
	var doc genreDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse genre profiles: %w", err)
	}
	if len(doc.Genres) == 0 {
		return nil, fmt.Errorf("genre document has no profiles")
	}

	lib := &GenreLibrary{profiles: make(map[string]GenreProfile, len(doc.Genres))}
	for name, p := range doc.Genres {
		key := normalizeGenre(name)
		p.Name = key
		if err := validateProfile(p); err != nil {
			return nil, err
		}
		lib.profiles[key] = p
	}
	return lib, nil
}

// LoadGenres reads a genre YAML file on top of the built-in profiles; profiles
// with the same name replace the built-in ones
func LoadGenres(path string) (*GenreLibrary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open genre file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read genre file: %w", err)
	}

	user, err := ParseGenres(data)
	if err != nil {
		return nil, err
	}
	lib := DefaultGenres()
	lib.Merge(user)
	return lib, nil
}

// Merge copies other's profiles into the library, replacing same-named ones
func (l *GenreLibrary) Merge(other *GenreLibrary) {
	for name, p := range other.profiles {
		l.profiles[name] = p
	}
}

// Lookup returns the named profile, or the default profile
func (l *GenreLibrary) Lookup(name string) GenreProfile {
	if p, ok := l.profiles[normalizeGenre(name)]; ok {
		return p
	}
	if p, ok := l.profiles[DefaultGenre]; ok {
		return p
	}
	return GenreProfile{Name: DefaultGenre, Cadences: []string{"authentic"}, Predominant: "IV"}
}

// Has reports whether the library defines the named profile
func (l *GenreLibrary) Has(name string) bool {
	_, ok := l.profiles[normalizeGenre(name)]
	return ok
}

// Names returns the profile names in sorted order
func (l *GenreLibrary) Names() []string {
	names := make([]string, 0, len(l.profiles))
	for name := range l.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeGenre maps "Neo Soul", "neo_soul" and "neo-soul" to one key
func normalizeGenre(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(name)
}

func validateProfile(p GenreProfile) error {
	probs := map[string]float64{
		"secondary_dominant_probability": p.SecondaryDominantProbability,
		"extensions.dominant":            p.Extensions.Dominant,
		"extensions.major":               p.Extensions.Major,
		"extensions.minor":               p.Extensions.Minor,
	}
	for field, v := range probs {
		if v < 0 || v > 1 {
			return fmt.Errorf("genre %q: %s must be in [0,1], got %g", p.Name, field, v)
		}
	}
	switch p.Predominant {
	case "", "IV", "ii":
	default:
		return fmt.Errorf("genre %q: predominant must be IV or ii, got %q", p.Name, p.Predominant)
	}
	return nil
}
