package intent

// keywordTable holds the per-category trigger keywords for one
// language. Matching is lowercase substring over the stripped message.
type keywordTable struct {
	Chat       []string
	Create     []string
	Modify     []string
	Automation []string
	Script     []string
	Dashboard  []string
	Control    []string
	Query      []string
	History    []string
	Delete     []string
	Config     []string
	Helper     []string
	Exists     []string // "does an automation exist" phrasings
	Yes        []string
	No         []string
}

var keywordTables = map[string]keywordTable{
	"en": {
		Chat:       []string{"hello", "hi ", "hey", "good morning", "good evening", "good night", "thanks", "thank you", "how are you"},
		Create:     []string{"create", "add ", "make", "build", "new ", "set up"},
		Modify:     []string{"modify", "change", "edit", "update", "adjust", "rename"},
		Automation: []string{"automation"},
		Script:     []string{"script", "scene", "sequence"},
		Dashboard:  []string{"dashboard", "lovelace", "panel"},
		Control:    []string{"turn on", "turn off", "switch on", "switch off", "toggle", "open the", "close the", "start the", "stop the", "activate", "dim "},
		Query:      []string{"what is", "what's", "status", "state of", "how much", "how many", "is the", "are the", "check the"},
		History:    []string{"history", "yesterday", "last week", "last month", "over time", "trend"},
		Delete:     []string{"delete", "remove", "erase"},
		Config:     []string{"config file", "configuration.yaml", "yaml file", "snapshot", "restore", "check config", "check the configuration"},
		Helper:     []string{"helper", "input_boolean", "input_number", "input_select", "input_text", "input_datetime"},
		Exists:     []string{"is there", "does an", "do i have", "exist"},
		Yes:        []string{"yes", "yep", "yeah", "ok", "okay", "sure", "confirm", "confirmed", "go ahead", "do it", "proceed"},
		No:         []string{"no", "nope", "cancel", "stop", "don't", "abort", "never mind"},
	},
	"it": {
		Chat:       []string{"ciao", "salve", "buongiorno", "buonasera", "buonanotte", "grazie", "come stai", "come va"},
		Create:     []string{"crea", "aggiungi", "nuovo", "nuova", "fammi", "costruisci", "prepara"},
		Modify:     []string{"modifica", "cambia", "aggiorna", "sposta", "rinomina", "correggi", "sistema"},
		Automation: []string{"automazione", "automazioni"},
		Script:     []string{"script", "scena", "scenario", "sequenza", "routine"},
		Dashboard:  []string{"dashboard", "lovelace", "pannello", "scheda"},
		Control:    []string{"accendi", "spegni", "apri", "chiudi", "attiva", "disattiva", "imposta", "avvia", "ferma", "alza", "abbassa"},
		Query:      []string{"stato", "qual è", "quanto", "quanti", "com'è", "che temperatura", "è accesa", "è accesso", "è spenta", "è spento", "controlla"},
		History:    []string{"storico", "cronologia", "ieri", "settimana scorsa", "ultimi giorni", "andamento"},
		Delete:     []string{"elimina", "cancella", "rimuovi"},
		Config:     []string{"file di configurazione", "configuration.yaml", "file yaml", "snapshot", "ripristina", "verifica la configurazione", "controlla la configurazione"},
		Helper:     []string{"helper", "input_boolean", "input_number", "input_select", "input_text", "input_datetime"},
		Exists:     []string{"c'è", "c'e", "c’è", "esiste", "ci sono"},
		Yes:        []string{"sì", "si", "ok", "va bene", "certo", "conferma", "confermo", "procedi", "vai"},
		No:         []string{"no", "annulla", "ferma", "lascia stare", "non farlo"},
	},
	"es": {
		Chat:       []string{"hola", "buenos días", "buenas tardes", "buenas noches", "gracias", "qué tal"},
		Create:     []string{"crea", "añade", "agrega", "nuevo", "nueva", "hazme", "prepara"},
		Modify:     []string{"modifica", "cambia", "edita", "actualiza", "ajusta", "renombra"},
		Automation: []string{"automatización", "automatizacion", "automatizaciones"},
		Script:     []string{"script", "escena", "secuencia", "rutina"},
		Dashboard:  []string{"dashboard", "lovelace", "panel", "tablero"},
		Control:    []string{"enciende", "apaga", "abre", "cierra", "activa", "desactiva", "pon ", "arranca", "detén", "sube", "baja"},
		Query:      []string{"estado", "cuál es", "cuánto", "cuántos", "está encendid", "está apagad", "comprueba", "revisa"},
		History:    []string{"historial", "ayer", "semana pasada", "últimos días", "tendencia"},
		Delete:     []string{"elimina", "borra", "quita"},
		Config:     []string{"archivo de configuración", "configuration.yaml", "archivo yaml", "snapshot", "restaura", "verifica la configuración"},
		Helper:     []string{"helper", "ayudante", "input_boolean", "input_number", "input_select", "input_text", "input_datetime"},
		Exists:     []string{"hay alguna", "hay una", "existe", "tengo alguna"},
		Yes:        []string{"sí", "si", "ok", "vale", "claro", "confirma", "confirmo", "adelante", "procede"},
		No:         []string{"no", "cancela", "detente", "déjalo", "no lo hagas"},
	},
	"fr": {
		Chat:       []string{"bonjour", "salut", "bonsoir", "bonne nuit", "merci", "ça va"},
		Create:     []string{"crée", "cree", "ajoute", "nouveau", "nouvelle", "fais-moi", "prépare"},
		Modify:     []string{"modifie", "change", "édite", "mets à jour", "ajuste", "renomme", "déplace"},
		Automation: []string{"automatisation"},
		Script:     []string{"script", "scène", "scene", "séquence", "routine"},
		Dashboard:  []string{"dashboard", "lovelace", "tableau de bord", "panneau"},
		Control:    []string{"allume", "éteins", "eteins", "ouvre", "ferme", "active", "désactive", "démarre", "arrête", "règle", "monte", "baisse"},
		Query:      []string{"état", "etat", "quel est", "quelle est", "combien", "est-ce que", "vérifie", "verifie"},
		History:    []string{"historique", "hier", "semaine dernière", "derniers jours", "tendance"},
		Delete:     []string{"supprime", "efface", "retire", "enlève"},
		Config:     []string{"fichier de configuration", "configuration.yaml", "fichier yaml", "snapshot", "restaure", "vérifie la configuration"},
		Helper:     []string{"helper", "input_boolean", "input_number", "input_select", "input_text", "input_datetime"},
		Exists:     []string{"y a-t-il", "existe", "est-ce qu'il y a", "j'ai une"},
		Yes:        []string{"oui", "ok", "d'accord", "bien sûr", "confirme", "je confirme", "vas-y", "procède"},
		No:         []string{"non", "annule", "arrête", "laisse tomber", "ne le fais pas"},
	},
}

// htmlDashboardKeywords route "create dashboard" requests toward the
// raw-HTML builder instead of Lovelace. These are technology words that
// read the same across the supported languages.
var htmlDashboardKeywords = []string{
	"html", "vue", "web", "javascript", "js", "react", "svelte",
	"interactive", "interattiv", "interactiv", "realtime", "live",
	"responsive", "app", "custom css", "custom design", "framework",
	"creativ",
}

// tableFor returns the keyword table for lang, falling back to English.
func tableFor(lang string) keywordTable {
	if t, ok := keywordTables[lang]; ok {
		return t
	}
	return keywordTables["en"]
}

// respondInstructions enforce the configured language even on focused
// prompts, matching whatever the keyword tables were matched against.
var respondInstructions = map[string]string{
	"en": "Always respond in English.",
	"it": "Rispondi sempre in italiano.",
	"es": "Responde siempre en español.",
	"fr": "Réponds toujours en français.",
}

func respondInstruction(lang string) string {
	if s, ok := respondInstructions[lang]; ok {
		return s
	}
	return respondInstructions["en"]
}
