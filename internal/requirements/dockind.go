package requirements

import (
	"slices"
	"strings"
)

// DocKind identifies a supporting document. The set is closed.
type DocKind string

const (
	DocIdentity              DocKind = "identity_document"
	DocProofOfAddress        DocKind = "proof_of_address"
	DocMedicalFitness        DocKind = "medical_fitness"
	DocCompletionCertificate DocKind = "completion_certificate"
	DocTransferRequest       DocKind = "transfer_request"
	DocPartialTranscript     DocKind = "partial_transcript"
	DocBirthCertificate      DocKind = "birth_certificate"
	DocPhotograph            DocKind = "photograph"
)

// AllDocKinds lists every kind in canonical presentation order.
var AllDocKinds = []DocKind{
	DocIdentity,
	DocProofOfAddress,
	DocMedicalFitness,
	DocBirthCertificate,
	DocPhotograph,
	DocCompletionCertificate,
	DocPartialTranscript,
	DocTransferRequest,
}

var docLabels = map[DocKind]string{
	DocIdentity:              "identity document",
	DocProofOfAddress:        "proof of address",
	DocMedicalFitness:        "medical fitness record",
	DocCompletionCertificate: "prior-school completion certificate",
	DocTransferRequest:       "transfer request",
	DocPartialTranscript:     "partial transcript",
	DocBirthCertificate:      "birth certificate",
	DocPhotograph:            "photograph",
}

// docAliases maps legacy form field names onto kinds.
var docAliases = map[string]DocKind{
	"dni":                  DocIdentity,
	"identity":             DocIdentity,
	"address":              DocProofOfAddress,
	"constancia_domicilio": DocProofOfAddress,
	"medical":              DocMedicalFitness,
	"ficha_medica":         DocMedicalFitness,
	"certificado_primaria": DocCompletionCertificate,
	"pase":                 DocTransferRequest,
	"solicitud_pase":       DocTransferRequest,
	"analitico_parcial":    DocPartialTranscript,
	"partida_nacimiento":   DocBirthCertificate,
	"foto":                 DocPhotograph,
	"photo":                DocPhotograph,
}

// IsValid reports whether k belongs to the closed set.
func (k DocKind) IsValid() bool {
	_, ok := docLabels[k]
	return ok
}

// Label is the human readable name used in messages.
func (k DocKind) Label() string {
	if l, ok := docLabels[k]; ok {
		return l
	}
	return string(k)
}

func (k DocKind) String() string { return string(k) }

// ParseDocKind accepts canonical names, hyphenated or spaced variants, and legacy aliases.
func ParseDocKind(raw string) (DocKind, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if k := DocKind(s); k.IsValid() {
		return k, true
	}
	k, ok := docAliases[s]
	return k, ok
}

// SortDocKinds orders kinds by canonical presentation order in place.
func SortDocKinds(kinds []DocKind) {
	slices.SortStableFunc(kinds, func(a, b DocKind) int {
		return rank(a) - rank(b)
	})
}

func rank(k DocKind) int {
	if i := slices.Index(AllDocKinds, k); i >= 0 {
		return i
	}
	return len(AllDocKinds)
}
