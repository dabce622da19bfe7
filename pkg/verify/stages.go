package verify

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/eventbadges/badge-engine/pkg/credential"
	"github.com/eventbadges/badge-engine/pkg/issuer"
	"github.com/eventbadges/badge-engine/pkg/multikey"
	"github.com/eventbadges/badge-engine/pkg/proof"
)

func (p *Pipeline) checkStructure(e *Extracted) Check {
	doc := e.Document
	var missing []string

	if !lo.Contains(stringValues(doc["@context"]), credential.ContextCredentialsV2) {
		missing = append(missing, fmt.Sprintf("@context must include %s", credential.ContextCredentialsV2))
	}
	if !lo.Contains(stringValues(doc["type"]), credential.TypeVerifiableCredential) {
		missing = append(missing, fmt.Sprintf("type must include %s", credential.TypeVerifiableCredential))
	}
	if issuerID(doc) == "" {
		missing = append(missing, "issuer id is missing")
	}
	if _, ok := doc["credentialSubject"]; !ok {
		missing = append(missing, "credentialSubject is missing")
	}
	// A compact token is its own proof.
	if e.Format == FormatJSON && len(proofsOf(doc)) == 0 {
		missing = append(missing, "at least one proof is required")
	}

	if len(missing) > 0 {
		return errorf(CheckStructure, "Credential structure is invalid: %s", strings.Join(missing, "; ")).
			with(map[string]any{"problems": missing})
	}
	return successf(CheckStructure, "Credential structure is valid")
}

// verifyIssuerChain runs the issuer, controller and proof checks. The last
// two depend on the issuer profile and are reported pending without it.
func (p *Pipeline) verifyIssuerChain(ctx context.Context, e *Extracted) []Check {
	issuerCheck, profile := p.checkIssuer(ctx, e)
	if issuerCheck.Status != StatusSuccess {
		return []Check{
			issuerCheck,
			pendingf(CheckController, "Skipped: issuer profile was not retrieved"),
			pendingf(CheckProof, "Skipped: issuer profile was not retrieved"),
		}
	}

	controllerCheck, key := p.checkController(ctx, e, profile)
	return []Check{issuerCheck, controllerCheck, p.checkProof(e, key)}
}

func (p *Pipeline) checkIssuer(ctx context.Context, e *Extracted) (Check, *Document) {
	id := issuerID(e.Document)
	if id == "" {
		return errorf(CheckIssuer, "Issuer id is missing"), nil
	}
	if !isHTTPURL(id) {
		return errorf(CheckIssuer, "Issuer id %q is not an http(s) URL", id), nil
	}

	doc, err := p.fetch(ctx, id, p.config.FetchTimeout)
	if err != nil {
		return errorf(CheckIssuer, "Failed to fetch issuer profile: %v", err).
			with(map[string]any{"url": id, "error": err.Error()}), nil
	}
	if !doc.OK() {
		return warningf(CheckIssuer, "Issuer profile returned HTTP %d", doc.StatusCode).
			with(map[string]any{"url": id, "status": doc.StatusCode}), nil
	}

	details := map[string]any{"url": id}
	if name := doc.Get("name").String(); name != "" {
		details["name"] = name
	}
	return successf(CheckIssuer, "Issuer profile retrieved").with(details), doc
}

func verificationMethodOf(e *Extracted) string {
	if e.Format == FormatCompact {
		return e.KeyID
	}
	proofs := proofsOf(e.Document)
	if len(proofs) == 0 {
		return ""
	}
	return stringAt(proofs[0], "verificationMethod")
}

// findVerificationMethod looks vm up in the profile's verificationMethod and
// assertionMethod lists. Entries may be embedded objects or id strings.
func findVerificationMethod(profile *Document, vm string) (gjson.Result, bool) {
	for _, path := range []string{"verificationMethod", "assertionMethod"} {
		var found gjson.Result
		ok := false
		profile.Get(path).ForEach(func(_, entry gjson.Result) bool {
			if entry.String() == vm || (entry.IsObject() && entry.Get("id").String() == vm) {
				found, ok = entry, true
				return false
			}
			return true
		})
		if ok {
			return found, true
		}
	}
	return gjson.Result{}, false
}

// controlledByIssuer reports whether controller names the issuer, either by
// its profile id or by the issuer URL the profile id is derived from.
func controlledByIssuer(controller, issuerID string) bool {
	if controller == "" {
		return false
	}
	if controller == issuerID {
		return true
	}
	origin := issuer.OriginOf(issuerID)
	return origin != "" && strings.TrimRight(controller, "/") == origin
}

func (p *Pipeline) checkController(ctx context.Context, e *Extracted, profile *Document) (Check, ed25519.PublicKey) {
	vm := verificationMethodOf(e)
	if vm == "" {
		return errorf(CheckController, "Credential declares no verification method"), nil
	}
	id := issuerID(e.Document)

	var issues []string
	var profileKey, documentKey string

	// Every accepted controller is the issuer id or derived from it, so the
	// id itself must be the issuer profile endpoint.
	if !strings.HasSuffix(id, issuer.ProfilePath) {
		issues = append(issues, fmt.Sprintf("issuer %q is not scoped under %s", id, issuer.ProfilePath))
	}

	// Profile entry
	entry, found := findVerificationMethod(profile, vm)
	switch {
	case !found:
		issues = append(issues, fmt.Sprintf("verification method %s is not listed in the issuer profile", vm))
	case entry.IsObject():
		controller := entry.Get("controller").String()
		if controller != id {
			issues = append(issues, fmt.Sprintf("profile verification method controller %q does not match issuer %q", controller, id))
		}
		if !strings.HasSuffix(controller, issuer.ProfilePath) {
			issues = append(issues, fmt.Sprintf("profile verification method controller %q is not scoped under %s", controller, issuer.ProfilePath))
		}
		profileKey = entry.Get("publicKeyMultibase").String()
	}

	// Verification method document
	doc, err := p.fetch(ctx, vm, p.config.MethodTimeout)
	switch {
	case err != nil:
		issues = append(issues, fmt.Sprintf("failed to fetch verification method document: %v", err))
	case !doc.OK():
		issues = append(issues, fmt.Sprintf("verification method document returned HTTP %d", doc.StatusCode))
	default:
		if docID := doc.Get("id").String(); docID != "" && docID != vm {
			issues = append(issues, fmt.Sprintf("verification method document id %q does not match %q", docID, vm))
		}
		if controller := doc.Get("controller").String(); !controlledByIssuer(controller, id) {
			issues = append(issues, fmt.Sprintf("verification method document controller %q does not match issuer %q", controller, id))
		}
		documentKey = doc.Get("publicKeyMultibase").String()
		if documentKey == "" {
			issues = append(issues, "verification method document has no publicKeyMultibase")
		}
	}

	if profileKey != "" && documentKey != "" && profileKey != documentKey {
		issues = append(issues, "publicKeyMultibase differs between issuer profile and verification method document")
	}

	var key ed25519.PublicKey
	if encoded := lo.Ternary(documentKey != "", documentKey, profileKey); encoded != "" {
		decoded, err := multikey.Decode(encoded)
		if err != nil {
			issues = append(issues, fmt.Sprintf("publicKeyMultibase is invalid: %v", err))
		} else {
			key = decoded
		}
	}

	if len(issues) > 0 {
		return errorf(CheckController, "Verification method %s failed controller checks: %s", vm, strings.Join(issues, "; ")).
			with(map[string]any{"verificationMethod": vm, "issues": issues}), key
	}
	return successf(CheckController, "Verification method is controlled by the issuer").
		with(map[string]any{"verificationMethod": vm}), key
}

func (p *Pipeline) checkProof(e *Extracted, key ed25519.PublicKey) Check {
	if key == nil {
		return errorf(CheckProof, "No public key could be resolved for the verification method")
	}

	if e.Format == FormatCompact {
		if _, err := credential.VerifyTokenDocument(e.Token, key); err != nil {
			return errorf(CheckProof, "Token signature is invalid: %v", err)
		}
		if err := credential.CheckRegisteredClaims(e.Claims); err != nil {
			return errorf(CheckProof, "Token claims do not match the credential: %v", err)
		}
		return successf(CheckProof, "Token signature verified").
			with(map[string]any{"verificationMethod": e.KeyID})
	}

	proofs := proofsOf(e.Document)
	if len(proofs) == 0 {
		return errorf(CheckProof, "Credential carries no proof")
	}
	pr := proofs[0]
	details := map[string]any{
		"type":               stringAt(pr, "type"),
		"cryptosuite":        stringAt(pr, "cryptosuite"),
		"verificationMethod": stringAt(pr, "verificationMethod"),
	}

	if !credential.VerifyDocumentProof(e.Document, stringAt(pr, "proofValue"), key) {
		return errorf(CheckProof, "Proof signature is invalid").with(details)
	}

	var notes []string
	if t := stringAt(pr, "type"); t != proof.TypeDataIntegrity {
		notes = append(notes, fmt.Sprintf("unexpected proof type %q", t))
	}
	if cs := stringAt(pr, "cryptosuite"); cs != proof.CryptosuiteEdDSA {
		notes = append(notes, fmt.Sprintf("unexpected cryptosuite %q", cs))
	}
	if pp := stringAt(pr, "proofPurpose"); pp != proof.PurposeAssertion {
		notes = append(notes, fmt.Sprintf("unexpected proof purpose %q", pp))
	}
	if len(notes) > 0 {
		return warningf(CheckProof, "Proof signature verified, but %s", strings.Join(notes, "; ")).with(details)
	}
	return successf(CheckProof, "Proof signature verified (%s)", proof.CryptosuiteEdDSA).with(details)
}

func (p *Pipeline) checkAchievement(ctx context.Context, e *Extracted) Check {
	id := achievementID(e.Document)
	if id == "" {
		return warningf(CheckAchievement, "Achievement has no id to resolve")
	}
	if !isHTTPURL(id) {
		return warningf(CheckAchievement, "Achievement id %q is not an http(s) URL", id)
	}

	doc, err := p.fetch(ctx, id, p.config.FetchTimeout)
	if err != nil {
		return warningf(CheckAchievement, "Failed to fetch achievement: %v", err).
			with(map[string]any{"url": id, "error": err.Error()})
	}
	if !doc.OK() {
		return warningf(CheckAchievement, "Achievement returned HTTP %d", doc.StatusCode).
			with(map[string]any{"url": id, "status": doc.StatusCode})
	}
	return successf(CheckAchievement, "Achievement definition retrieved").with(map[string]any{"url": id})
}

func (p *Pipeline) checkValidity(e *Extracted) Check {
	raw := stringAt(e.Document, "validFrom")
	if raw == "" {
		return errorf(CheckValidity, "validFrom is missing")
	}
	validFrom, err := credential.ParseTime(raw)
	if err != nil {
		return errorf(CheckValidity, "validFrom %q is not a valid timestamp", raw)
	}

	// TODO: check validUntil once product confirms expired badges should
	// fail verification rather than be left to relying parties.
	if p.config.Clock().Before(validFrom) {
		return warningf(CheckValidity, "Credential is not valid until %s", credential.FormatTime(validFrom))
	}
	return successf(CheckValidity, "Credential is valid since %s", credential.FormatTime(validFrom))
}
