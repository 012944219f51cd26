package model

// SunoModel selects the generation model version
type SunoModel string

const (
	ModelV3_5     SunoModel = "V3_5"
	ModelV4       SunoModel = "V4"
	ModelV4_5     SunoModel = "V4_5"
	ModelV4_5Plus SunoModel = "V4_5PLUS"
	ModelV4_5All  SunoModel = "V4_5ALL"
	ModelV5       SunoModel = "V5"
)

var ValidModels = []SunoModel{
	ModelV3_5, ModelV4, ModelV4_5, ModelV4_5Plus, ModelV4_5All, ModelV5,
}

// Genre names accepted by the prompt generator
const (
	GenreKpop      = "K-pop"
	GenreRnb       = "R&B"
	GenreBallad    = "Ballad"
	GenreEDM       = "EDM"
	GenreLofi      = "Lo-fi"
	GenreHiphop    = "Hip-hop"
	GenreRock      = "Rock"
	GenreJazz      = "Jazz"
	GenreCityPop   = "City Pop"
	GenreCinematic = "Cinematic/OST"
)

// GenreReference maps a genre to style tags the prompt must include
var GenreReference = map[string]string{
	GenreKpop:      "modern K-pop style, catchy chorus, clean production, strong rhythm, polished arrangement",
	GenreRnb:       "smooth R&B groove, emotional vocal delivery, warm chords, slow to mid tempo, intimate atmosphere",
	GenreBallad:    "emotional ballad, piano-driven arrangement, slow tempo, heartfelt melody, expressive vocal",
	GenreEDM:       "energetic EDM track, powerful drop, modern electronic sound, festival-style rhythm",
	GenreLofi:      "lo-fi chill beat, relaxed tempo, soft textures, nostalgic atmosphere, minimal arrangement",
	GenreHiphop:    "modern hip-hop beat, strong rhythm, deep bass, atmospheric sound, confident delivery",
	GenreRock:      "modern rock style, electric guitar driven, dynamic energy, strong drums",
	GenreJazz:      "smooth jazz style, warm instruments, relaxed groove, late-night atmosphere",
	GenreCityPop:   "retro city pop style, 80s inspired groove, nostalgic melody, smooth rhythm section",
	GenreCinematic: "cinematic orchestral style, emotional progression, dramatic atmosphere, cinematic score",
}

// Vocal gender
type VocalGender string

const (
	VocalMale   VocalGender = "Male"
	VocalFemale VocalGender = "Female"
)

// Tempo hints
const (
	TempoVerySlow = "very slow"
	TempoSlow     = "slow"
	TempoMid      = "mid-tempo"
	TempoUpbeat   = "upbeat"
	TempoFast     = "fast"
)
