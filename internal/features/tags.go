package features

// styleTargets maps a recognized tag keyword to target values on the five
// style dimensions (0–35). A zero entry means the tag says nothing about
// that dimension. Targets are weighted by tag count and averaged per
// dimension across all contributing tags.
type styleTargets struct {
	Mellow        int
	Unpretentious int
	Sophisticated int
	Intense       int
	Contemporary  int
}

var styleTable = map[string]styleTargets{
	"rock":              {Intense: 26, Contemporary: 20},
	"hard rock":         {Intense: 30},
	"metal":             {Intense: 32, Sophisticated: 18},
	"punk":              {Intense: 30, Unpretentious: 24},
	"hip hop":           {Contemporary: 30, Unpretentious: 20, Intense: 24},
	"hip-hop":           {Contemporary: 30, Unpretentious: 20, Intense: 24},
	"rap":               {Contemporary: 30, Unpretentious: 20, Intense: 24},
	"trap":              {Contemporary: 32, Intense: 26},
	"electronic":        {Contemporary: 30, Intense: 24},
	"edm":               {Contemporary: 32, Intense: 28},
	"house":             {Contemporary: 30, Intense: 24},
	"techno":            {Contemporary: 30, Intense: 26},
	"dance":             {Contemporary: 28, Unpretentious: 20},
	"pop":               {Contemporary: 26, Unpretentious: 22},
	"indie":             {Sophisticated: 22, Contemporary: 22},
	"alternative":       {Sophisticated: 20, Intense: 20},
	"jazz":              {Sophisticated: 30, Mellow: 22},
	"classical":         {Sophisticated: 32, Mellow: 24},
	"blues":             {Sophisticated: 24, Mellow: 20},
	"soul":              {Mellow: 22, Contemporary: 18},
	"r&b":               {Mellow: 20, Contemporary: 24},
	"rnb":               {Mellow: 20, Contemporary: 24},
	"funk":              {Unpretentious: 20, Intense: 20},
	"folk":              {Mellow: 28, Unpretentious: 24},
	"acoustic":          {Mellow: 28, Unpretentious: 22},
	"singer-songwriter": {Mellow: 26, Sophisticated: 20},
	"country":           {Unpretentious: 30},
	"ambient":           {Mellow: 32, Sophisticated: 20},
	"chill":             {Mellow: 30},
	"chillout":          {Mellow: 30},
	"lo-fi":             {Mellow: 28, Contemporary: 22},
	"reggae":            {Mellow: 22, Unpretentious: 20},
	"latin":             {Unpretentious: 22, Contemporary: 22},
	"world":             {Sophisticated: 24},
	"experimental":      {Sophisticated: 28, Intense: 22},
	"progressive":       {Sophisticated: 26, Intense: 22},
	"soundtrack":        {Sophisticated: 22, Mellow: 20},
	"gospel":            {Mellow: 20, Unpretentious: 22},
	"disco":             {Unpretentious: 22, Contemporary: 20},
	"grunge":            {Intense: 28},
	"emo":               {Intense: 24, Contemporary: 20},
	"synthpop":          {Contemporary: 28},
	"new wave":          {Contemporary: 22, Sophisticated: 18},
}

// genreVocabulary is the fixed set of tags that qualify as genres; a track's
// genres are its top-weighted tags found in this set.
var genreVocabulary = map[string]bool{
	"rock": true, "hard rock": true, "metal": true, "punk": true,
	"hip hop": true, "hip-hop": true, "rap": true, "trap": true,
	"electronic": true, "edm": true, "house": true, "techno": true,
	"dance": true, "pop": true, "indie": true, "alternative": true,
	"jazz": true, "classical": true, "blues": true, "soul": true,
	"r&b": true, "rnb": true, "funk": true, "folk": true,
	"acoustic": true, "country": true, "ambient": true, "reggae": true,
	"latin": true, "world": true, "disco": true, "grunge": true,
	"emo": true, "synthpop": true, "new wave": true, "soundtrack": true,
	"gospel": true, "lo-fi": true,
}

// attributeHints are the independent keyword heuristics for the non-style
// dimensions, used when no numeric feature vector exists. Each hint pushes
// one dimension toward a target value.
type attributeHint struct {
	dim    string // "tempo", "energy", "mode", "predictability", "consonance", "valence", "arousal", "complexity"
	target int    // 0–35
}

var attributeHints = map[string][]attributeHint{
	"fast":         {{"tempo", 30}, {"arousal", 26}},
	"upbeat":       {{"tempo", 26}, {"valence", 28}, {"energy", 26}},
	"energetic":    {{"energy", 30}, {"arousal", 28}},
	"uptempo":      {{"tempo", 28}},
	"slow":         {{"tempo", 8}, {"arousal", 10}},
	"ballad":       {{"tempo", 8}, {"energy", 10}, {"valence", 14}},
	"mellow":       {{"energy", 10}, {"arousal", 10}},
	"calm":         {{"energy", 8}, {"arousal", 8}},
	"relaxing":     {{"energy", 8}, {"arousal", 8}, {"valence", 22}},
	"aggressive":   {{"energy", 32}, {"consonance", 12}, {"valence", 12}},
	"heavy":        {{"energy", 30}, {"consonance", 14}},
	"happy":        {{"valence", 30}, {"mode", 28}},
	"feel good":    {{"valence", 30}},
	"sad":          {{"valence", 6}, {"mode", 8}},
	"melancholy":   {{"valence", 8}, {"mode", 10}},
	"dark":         {{"valence", 8}, {"mode", 8}},
	"minor":        {{"mode", 6}},
	"major":        {{"mode", 30}},
	"complex":      {{"complexity", 28}},
	"intricate":    {{"complexity", 28}},
	"experimental": {{"complexity", 30}, {"predictability", 8}, {"consonance", 14}},
	"progressive":  {{"complexity", 26}, {"predictability", 12}},
	"simple":       {{"complexity", 8}, {"predictability", 26}},
	"catchy":       {{"predictability", 28}, {"valence", 24}},
	"anthem":       {{"predictability", 26}, {"energy", 26}},
	"pop":          {{"predictability", 24}},
	"dissonant":    {{"consonance", 6}},
	"noise":        {{"consonance", 6}, {"complexity", 24}},
	"smooth":       {{"consonance", 28}, {"energy", 12}},
	"harmonic":     {{"consonance", 28}},
	"intense":      {{"arousal", 30}, {"energy", 28}},
	"dreamy":       {{"arousal", 10}, {"consonance", 24}},
}
