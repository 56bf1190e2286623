package applemusic

// DefaultRegion is used when no storefront is configured.
const DefaultRegion = "ca"

// regions holds every valid Apple Music storefront code.
var regions = map[string]bool{
	"ae": true, "ag": true, "ai": true, "am": true, "ar": true,
	"at": true, "au": true, "az": true, "bb": true, "be": true,
	"bg": true, "bh": true, "bm": true, "bo": true, "br": true,
	"bs": true, "bw": true, "by": true, "bz": true, "ca": true,
	"cf": true, "ch": true, "ci": true, "cl": true, "cm": true,
	"cn": true, "co": true, "cr": true, "cz": true, "de": true,
	"dk": true, "dm": true, "do": true, "ec": true, "ee": true,
	"eg": true, "es": true, "fi": true, "fr": true, "gb": true,
	"gd": true, "ge": true, "gn": true, "gq": true, "gr": true,
	"gt": true, "gw": true, "gy": true, "hk": true, "hn": true,
	"hr": true, "hu": true, "id": true, "ie": true, "il": true,
	"in": true, "it": true, "jm": true, "jo": true, "jp": true,
	"kg": true, "kn": true, "kr": true, "kw": true, "ky": true,
	"kz": true, "la": true, "lc": true, "li": true, "lt": true,
	"lu": true, "lv": true, "ma": true, "md": true, "me": true,
	"mg": true, "mk": true, "ml": true, "mo": true, "ms": true,
	"mt": true, "mu": true, "mx": true, "my": true, "mz": true,
	"ne": true, "ng": true, "ni": true, "nl": true, "no": true,
	"nz": true, "om": true, "pa": true, "pe": true, "ph": true,
	"pl": true, "pr": true, "pt": true, "py": true, "qa": true,
	"ro": true, "ru": true, "sa": true, "se": true, "sg": true,
	"si": true, "sk": true, "sn": true, "sr": true, "sv": true,
	"tc": true, "th": true, "tj": true, "tm": true, "tn": true,
	"tr": true, "tt": true, "tw": true, "ua": true, "ug": true,
	"us": true, "uy": true, "uz": true, "vc": true, "ve": true,
	"vg": true, "vn": true, "za": true,
}

// ValidRegion reports whether code is a known storefront region.
func ValidRegion(code string) bool {
	return regions[code]
}
