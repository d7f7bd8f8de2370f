package weather

// weatherCodes maps WMO weather interpretation codes to descriptions.
var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain shower",
	81: "Moderate rain shower",
	82: "Violent rain shower",
	85: "Slight snow shower",
	86: "Heavy snow shower",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

// Describe returns the text for a WMO code, or "Unknown".
func Describe(code *int) string {
	if code == nil {
		return "Unknown"
	}
	if s, ok := weatherCodes[*code]; ok {
		return s
	}
	return "Unknown"
}
