package orchestrator

// statusText holds the user-visible progress and failure strings.
type statusText struct {
	Generating    string
	ExecutingTool string // fmt: tool name
	RateLimited   string // fmt: seconds
	Cancelled     string
	MaxRounds     string
	AuthFailed    string
	BillingFailed string
	ProviderDown  string
	RequestFailed string
}

var statusTables = map[string]statusText{
	"en": {
		Generating:    "Generating response...",
		ExecutingTool: "Running %s...",
		RateLimited:   "The AI service is rate limiting us. Retrying in %d seconds...",
		Cancelled:     "Request cancelled.",
		MaxRounds:     "I reached the step limit for this request. Here is what I have so far.",
		AuthFailed:    "The AI provider rejected the credentials. Check the configured API key.",
		BillingFailed: "The AI provider reports exhausted credit or quota. Check the account billing.",
		ProviderDown:  "The AI provider is temporarily unavailable. Please try again in a moment.",
		RequestFailed: "The request to the AI provider failed.",
	},
	"it": {
		Generating:    "Sto generando la risposta...",
		ExecutingTool: "Eseguo %s...",
		RateLimited:   "Il servizio AI ci sta limitando. Riprovo tra %d secondi...",
		Cancelled:     "Richiesta annullata.",
		MaxRounds:     "Ho raggiunto il limite di passaggi per questa richiesta. Ecco quello che ho finora.",
		AuthFailed:    "Il provider AI ha rifiutato le credenziali. Controlla la chiave API configurata.",
		BillingFailed: "Il provider AI segnala credito o quota esauriti. Controlla la fatturazione dell'account.",
		ProviderDown:  "Il provider AI è temporaneamente non disponibile. Riprova tra poco.",
		RequestFailed: "La richiesta al provider AI non è riuscita.",
	},
	"es": {
		Generating:    "Generando la respuesta...",
		ExecutingTool: "Ejecutando %s...",
		RateLimited:   "El servicio de IA nos está limitando. Reintentando en %d segundos...",
		Cancelled:     "Solicitud cancelada.",
		MaxRounds:     "Alcancé el límite de pasos para esta solicitud. Esto es lo que tengo hasta ahora.",
		AuthFailed:    "El proveedor de IA rechazó las credenciales. Revisa la clave API configurada.",
		BillingFailed: "El proveedor de IA informa crédito o cuota agotados. Revisa la facturación de la cuenta.",
		ProviderDown:  "El proveedor de IA no está disponible temporalmente. Inténtalo de nuevo en un momento.",
		RequestFailed: "La solicitud al proveedor de IA falló.",
	},
	"fr": {
		Generating:    "Génération de la réponse...",
		ExecutingTool: "Exécution de %s...",
		RateLimited:   "Le service d'IA nous limite. Nouvel essai dans %d secondes...",
		Cancelled:     "Requête annulée.",
		MaxRounds:     "J'ai atteint la limite d'étapes pour cette requête. Voici ce que j'ai pour l'instant.",
		AuthFailed:    "Le fournisseur d'IA a rejeté les identifiants. Vérifiez la clé API configurée.",
		BillingFailed: "Le fournisseur d'IA signale un crédit ou quota épuisé. Vérifiez la facturation du compte.",
		ProviderDown:  "Le fournisseur d'IA est temporairement indisponible. Réessayez dans un instant.",
		RequestFailed: "La requête au fournisseur d'IA a échoué.",
	},
}

func statusFor(lang string) statusText {
	if s, ok := statusTables[lang]; ok {
		return s
	}
	return statusTables["en"]
}
