package authority

// tokenResponse is the credential exchange result.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// SubmitAck is the authority's immediate acknowledgment of a submission.
type SubmitAck struct {
	AuthorityID string `json:"id"`
	Status      string `json:"status"`
}

// wireMessage is one structured validation message as the authority sends it.
type wireMessage struct {
	Code        string `json:"codigo"`
	Description string `json:"descricao"`
}

// rejectionBody covers both rejection shapes the authority uses: a list
// under "erros" or a single top-level code/description pair.
type rejectionBody struct {
	Errors      []wireMessage `json:"erros"`
	Code        string        `json:"codigo"`
	Description string        `json:"descricao"`
}

// StatusResponse is the status endpoint's view of a document. Identifier and
// artifact fields are present only once the authority has resolved it.
type StatusResponse struct {
	Status           string `json:"status"`
	DocumentNumber   string `json:"numero"`
	Series           string `json:"serie"`
	AccessKey        string `json:"chave"`
	VerificationCode string `json:"codigo_verificacao"`
	Reason           string `json:"motivo"`
	PDFURL           string `json:"pdf_url"`
	XMLURL           string `json:"xml_url"`
}

// ArtifactKind selects which rendered artifact to fetch.
type ArtifactKind string

const (
	// ArtifactRender is the human-readable rendering (PDF).
	ArtifactRender ArtifactKind = "render"
	// ArtifactMachine is the machine-readable twin (XML).
	ArtifactMachine ArtifactKind = "machine"
)

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	return k == ArtifactRender || k == ArtifactMachine
}
