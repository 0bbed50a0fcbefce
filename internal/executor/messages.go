package executor

// messages holds the user-visible strings the executor emits. Tool
// payloads stay English (the model reads them); these reach the user
// verbatim, so they follow the configured language.
type messages struct {
	ReadOnlyBlocked  string // fmt: tool name
	ReadOnlyNote     string
	ConfirmDelete    string // fmt: tool name
	ConfigDirUnset   string
	UnknownTool      string // fmt: tool name
	EntityNotFound   string // fmt: entity id
	DidYouMean       string // fmt: comma-joined suggestions
	SnapshotRestored string // fmt: path, snapshot id
}

var messageTables = map[string]messages{
	"en": {
		ReadOnlyBlocked:  "Read-only mode: '%s' was NOT executed.",
		ReadOnlyNote:     "Read-only mode: show the user the full YAML below in a yaml code block, then state that nothing was changed.",
		ConfirmDelete:    "'%s' permanently deletes. Ask the user to confirm explicitly, and only call this tool after they do.",
		ConfigDirUnset:   "Configuration file tools are disabled: no config directory is set.",
		UnknownTool:      "Unknown tool '%s'.",
		EntityNotFound:   "Entity '%s' does not exist.",
		DidYouMean:       "Did you mean: %s?",
		SnapshotRestored: "Restored '%s' from snapshot '%s'. A new snapshot of the overwritten content was created.",
	},
	"it": {
		ReadOnlyBlocked:  "Modalità sola lettura: '%s' NON è stato eseguito.",
		ReadOnlyNote:     "Modalità sola lettura: mostra all'utente lo YAML completo qui sotto in un code block yaml, poi precisa che nulla è stato modificato.",
		ConfirmDelete:    "'%s' elimina in modo permanente. Chiedi all'utente una conferma esplicita e chiama questo strumento solo dopo.",
		ConfigDirUnset:   "Gli strumenti sui file di configurazione sono disabilitati: nessuna directory di configurazione impostata.",
		UnknownTool:      "Strumento sconosciuto '%s'.",
		EntityNotFound:   "L'entità '%s' non esiste.",
		DidYouMean:       "Forse intendevi: %s?",
		SnapshotRestored: "Ripristinato '%s' dallo snapshot '%s'. È stato creato un nuovo snapshot del contenuto sovrascritto.",
	},
	"es": {
		ReadOnlyBlocked:  "Modo solo lectura: '%s' NO se ha ejecutado.",
		ReadOnlyNote:     "Modo solo lectura: muestra al usuario el YAML completo de abajo en un bloque de código yaml y aclara que no se ha modificado nada.",
		ConfirmDelete:    "'%s' elimina de forma permanente. Pide al usuario una confirmación explícita y llama a esta herramienta solo después.",
		ConfigDirUnset:   "Las herramientas de archivos de configuración están deshabilitadas: no hay directorio de configuración.",
		UnknownTool:      "Herramienta desconocida '%s'.",
		EntityNotFound:   "La entidad '%s' no existe.",
		DidYouMean:       "¿Querías decir: %s?",
		SnapshotRestored: "Restaurado '%s' desde el snapshot '%s'. Se creó un nuevo snapshot del contenido sobrescrito.",
	},
	"fr": {
		ReadOnlyBlocked:  "Mode lecture seule : '%s' n'a PAS été exécuté.",
		ReadOnlyNote:     "Mode lecture seule : montre à l'utilisateur le YAML complet ci-dessous dans un bloc de code yaml, puis précise que rien n'a été modifié.",
		ConfirmDelete:    "'%s' supprime définitivement. Demande à l'utilisateur une confirmation explicite et n'appelle cet outil qu'ensuite.",
		ConfigDirUnset:   "Les outils de fichiers de configuration sont désactivés : aucun répertoire de configuration défini.",
		UnknownTool:      "Outil inconnu '%s'.",
		EntityNotFound:   "L'entité '%s' n'existe pas.",
		DidYouMean:       "Vouliez-vous dire : %s ?",
		SnapshotRestored: "'%s' restauré depuis le snapshot '%s'. Un nouveau snapshot du contenu écrasé a été créé.",
	},
}

func messagesFor(lang string) messages {
	if m, ok := messageTables[lang]; ok {
		return m
	}
	return messageTables["en"]
}
