// Package sign implements the legacy header-based request signing scheme:
// a canonical string-to-sign hashed with HMAC-SHA1 and base64-encoded into
// an Authorization header value.
package sign

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strings"
	"time"
)

// WalrusResource is the canonical resource prefix for Walrus endpoints.
const WalrusResource = "/services/Walrus"

// dateLayout renders RFC-1123 dates in GMT the way the wire protocol
// requires.
const dateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// FormatDate renders t as the Date header value used in signing.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Params collects everything the canonical string depends on.
type Params struct {
	Verb        string
	ContentMD5  string
	ContentType string
	Date        string

	// Resource is the canonical path starting with '/': "/bucket/key"
	// with the raw unescaped key, "/bucket/" for in-bucket listings,
	// "/" for the all-buckets listing.
	Resource string
	IsWalrus bool

	PublicReadACL bool
	ServerEncrypt bool
}

// Resource composes the canonical path for a bucket and an optional
// raw key. hasKey distinguishes a bucket-level operation from a
// bucket listing, which signs with a trailing slash.
func Resource(bucket, key string, hasKey bool) string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(bucket)
	if hasKey {
		b.WriteByte('/')
		b.WriteString(key)
	}
	return b.String()
}

// StringToSign builds the canonical string. Amz headers appear only when
// set, each terminated by a newline, ACL before encryption. The resource
// path uses the raw key, never the escaped form.
func StringToSign(p *Params) string {
	var b strings.Builder
	b.WriteString(p.Verb)
	b.WriteByte('\n')
	b.WriteString(p.ContentMD5)
	b.WriteByte('\n')
	b.WriteString(p.ContentType)
	b.WriteByte('\n')
	b.WriteString(p.Date)
	b.WriteByte('\n')

	if p.PublicReadACL {
		b.WriteString("x-amz-acl:public-read\n")
	}
	if p.ServerEncrypt {
		b.WriteString("x-amz-server-side-encryption:AES256\n")
	}

	if p.IsWalrus {
		b.WriteString(WalrusResource)
	}
	b.WriteString(p.Resource)
	return b.String()
}

// AuthHeader computes the Authorization header value for the given
// parameters. The leading space is part of the value.
func AuthHeader(accKey, secKey string, p *Params) string {
	mac := hmac.New(sha1.New, []byte(secKey))
	mac.Write([]byte(StringToSign(p)))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	var b strings.Builder
	b.WriteString(" AWS ")
	b.WriteString(accKey)
	b.WriteByte(':')
	b.WriteString(sig)
	return b.String()
}
