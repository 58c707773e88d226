// Copyright 2019 cruzbit developers
// Use of this source code is governed by a MIT-style license that can be found in the LICENSE file.

package knotcoin

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/NebulousLabs/fastrand"
)

const certExpiryThreshold = 24 * time.Hour

// selfSignedCertValidityBlocks expresses the self-signed certificate's
// lifetime in the chain's own unit of time rather than a bare wall-clock
// duration: roughly 90 days' worth of blocks at the target block spacing.
// A node whose chain has stalled (no new tips landing) still rotates on
// wall-clock time, since CheckCertificates is driven by a timer, but the
// certificate's nominal lifetime is derived from consensus constants so
// it moves if TargetBlockSpacingSecs ever does.
const selfSignedCertValidityBlocks = 129600

// CertificateManager maintains one or more TLS certificates and
// determines which to serve for incoming connections to the node's RPC
// endpoint. It is tied to a Store so renewal checks can be logged against
// the chain height the node was at when the rotation happened, making
// certificate lifecycle events correlate with chain state in the node's
// logs.
type CertificateManager struct {
	lock     sync.RWMutex
	store    *Store
	certSelf *tls.Certificate // generated, self-signed certificate
	certExt  *tls.Certificate // explicitly provided, external certificate
	extValid bool
	dataDir  string
	certPath string
	keyPath  string
}

// NewCertificateManager creates the initial self-signed certificate and
// loads the external certificate, if file paths were provided. store is
// used only for annotating log lines with the chain's current tip height;
// a nil store is accepted (logs simply omit the height).
func NewCertificateManager(dataDir, certPath, keyPath string, store *Store) *CertificateManager {
	cm := &CertificateManager{
		store:    store,
		dataDir:  dataDir,
		certPath: certPath,
		keyPath:  keyPath,
	}

	if cert, err := cm.renewSelfSigned(); err != nil {
		log.Println(cm.annotate("unable to generate self-signed certificate: " + err.Error()))
	} else {
		cm.certSelf = cert
		log.Println(cm.annotate("generated self-signed TLS certificate"))
	}

	if len(certPath) != 0 && len(keyPath) != 0 {
		if err := cm.loadExternal(); err != nil {
			log.Println(cm.annotate("unable to load external TLS certificate: " + err.Error()))
		}
	}

	return cm
}

// annotate prefixes a log message with the chain's current tip height, if
// a store was supplied, so certificate events can be correlated with chain
// progress after the fact.
func (cm *CertificateManager) annotate(msg string) string {
	if cm.store == nil {
		return msg
	}
	tip, err := cm.store.GetTip()
	if err != nil || tip == nil {
		return msg
	}
	return fmt.Sprintf("[tip height %d] %s", tip.Height, msg)
}

// renewSelfSigned generates a fresh self-signed certificate/key pair on
// disk and loads it.
func (cm *CertificateManager) renewSelfSigned() (*tls.Certificate, error) {
	certPath, keyPath, err := generateSelfSignedCertAndKey(cm.dataDir, selfSignedCertValidityBlocks*TargetBlockSpacingSecs)
	if err != nil {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// loadExternal loads the operator-supplied certificate from disk and
// records whether it is currently valid.
func (cm *CertificateManager) loadExternal() error {
	certExt, err := tls.LoadX509KeyPair(cm.certPath, cm.keyPath)
	if err != nil {
		return err
	}
	notAfter, err := getTLSCertificateExpiry(certExt)
	if err != nil {
		return err
	}
	cm.certExt = &certExt
	cm.extValid = time.Now().Before(notAfter)
	if cm.extValid {
		log.Println(cm.annotate("loaded external TLS certificate"))
	} else {
		log.Println(cm.annotate("external TLS certificate is expired"))
	}
	return nil
}

// CheckCertificates is called periodically to ensure both the self-signed
// and external TLS certificates remain valid, renewing or reloading them
// from disk where necessary, and returns how long to wait before the next
// check.
func (cm *CertificateManager) CheckCertificates() (time.Duration, error) {
	cm.lock.Lock()
	defer cm.lock.Unlock()

	var firstErr error
	selfNotAfter, err := cm.ensureSelfSignedFresh()
	if err != nil && firstErr == nil {
		firstErr = err
	}

	extNotAfter, haveExt := cm.ensureExternalFresh()

	return cm.nextRecheckInterval(selfNotAfter, extNotAfter, haveExt), firstErr
}

// ensureSelfSignedFresh renews the self-signed certificate if it is within
// certExpiryThreshold of expiring, returning its (possibly refreshed)
// expiry time.
func (cm *CertificateManager) ensureSelfSignedFresh() (time.Time, error) {
	if cm.certSelf == nil {
		cert, err := cm.renewSelfSigned()
		if err != nil {
			return time.Time{}, err
		}
		cm.certSelf = cert
	}
	notAfter, err := getTLSCertificateExpiry(*cm.certSelf)
	if err != nil {
		return time.Time{}, err
	}
	if time.Now().Add(certExpiryThreshold).Before(notAfter) {
		return notAfter, nil
	}
	log.Println(cm.annotate("self-signed TLS certificate needs renewal"))
	cert, err := cm.renewSelfSigned()
	if err != nil {
		return notAfter, err
	}
	cm.certSelf = cert
	notAfter, err = getTLSCertificateExpiry(*cert)
	if err != nil {
		return notAfter, err
	}
	log.Println(cm.annotate("renewed self-signed TLS certificate"))
	return notAfter, nil
}

// ensureExternalFresh reloads the external certificate from disk if the
// in-memory copy is close to expiring, updating extValid to match whatever
// is now loaded. haveExt is false when no external certificate is
// configured at all.
func (cm *CertificateManager) ensureExternalFresh() (notAfter time.Time, haveExt bool) {
	if cm.certExt == nil {
		return time.Time{}, false
	}
	notAfter, err := getTLSCertificateExpiry(*cm.certExt)
	if err != nil {
		log.Println(cm.annotate("external certificate error: " + err.Error()))
		cm.extValid = false
		return time.Time{}, true
	}
	if time.Now().Add(certExpiryThreshold).Before(notAfter) {
		cm.extValid = true
		return notAfter, true
	}

	log.Println(cm.annotate("external TLS certificate needs renewal, reloading from disk"))
	if err := cm.loadExternal(); err != nil {
		// disk reload failed; fall back to whatever is already in memory.
		cm.extValid = time.Now().Before(notAfter)
		return notAfter, true
	}
	reloadedNotAfter, err := getTLSCertificateExpiry(*cm.certExt)
	if err != nil {
		log.Println(cm.annotate("reloaded external certificate is unparsable: " + err.Error()))
		return notAfter, true
	}
	return reloadedNotAfter, true
}

// nextRecheckInterval picks when CheckCertificates should run again: just
// ahead of the expiry of the certificate being served (the external one
// if configured and valid, otherwise the self-signed one), or in one hour
// if an external certificate is configured but invalid; clamped to a sane
// range and jittered so a fleet of nodes restarted together don't all
// recheck in lockstep.
func (cm *CertificateManager) nextRecheckInterval(selfNotAfter, extNotAfter time.Time, haveExt bool) time.Duration {
	var next time.Duration
	if cm.extValid && haveExt {
		next = time.Until(extNotAfter.Add(-certExpiryThreshold))
	} else if haveExt {
		// external cert configured but currently invalid: recheck soon,
		// an operator likely needs to replace it.
		next = time.Hour
	} else {
		next = time.Until(selfNotAfter.Add(-certExpiryThreshold))
	}

	const maxInterval = 24 * time.Hour * 28
	const minInterval = 3 * time.Minute
	if next > maxInterval {
		next = maxInterval
	}
	if next < minInterval {
		next = minInterval
	}
	jitter := time.Duration(fastrand.Intn(int(next/10) + 1))
	return next + jitter
}

// GetCertificateFunc is called from the JSON endpoint's http.Server when
// a new TLS listener is created, ensuring the most appropriate
// certificate is served for new connections.
func (cm *CertificateManager) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(clientHello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		cm.lock.RLock()
		defer cm.lock.RUnlock()
		if cm.extValid {
			return cm.certExt, nil
		}
		return cm.certSelf, nil
	}
}

// generateSelfSignedCertAndKey creates a self-signed ECDSA certificate and
// key pair under dataDir, valid for validitySecs, returning the paths to
// both PEM files.
func generateSelfSignedCertAndKey(dataDir string, validitySecs uint64) (certPath, keyPath string, err error) {
	certPath = filepath.Join(dataDir, "self_signed.crt")
	keyPath = filepath.Join(dataDir, "self_signed.key")

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", err
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "knotcoind"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(time.Duration(validitySecs) * time.Second),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return "", "", err
	}

	certOut, err := os.Create(certPath)
	if err != nil {
		return "", "", err
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: derBytes}); err != nil {
		return "", "", err
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return "", "", err
	}
	keyOut, err := os.OpenFile(keyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", "", err
	}
	defer keyOut.Close()
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		return "", "", err
	}

	return certPath, keyPath, nil
}

// getTLSCertificateExpiry parses the leaf certificate's NotAfter field.
func getTLSCertificateExpiry(cert tls.Certificate) (time.Time, error) {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return time.Time{}, err
	}
	return leaf.NotAfter, nil
}
