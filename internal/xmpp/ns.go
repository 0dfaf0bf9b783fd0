package xmpp

// Namespaces used on the wire.
const (
	nsClient     = "jabber:client"
	nsStreamsErr = "urn:ietf:params:xml:ns:xmpp-streams"
	nsSASL       = "urn:ietf:params:xml:ns:xmpp-sasl"
	nsBind       = "urn:ietf:params:xml:ns:xmpp-bind"
	nsTLS        = "urn:ietf:params:xml:ns:xmpp-tls"
	nsStanzas    = "urn:ietf:params:xml:ns:xmpp-stanzas"
	nsSession    = "urn:ietf:params:xml:ns:xmpp-session"
	nsIQAuth     = "jabber:iq:auth"
	nsIQAuthFeat = "http://jabber.org/features/iq-auth"
	nsRoster     = "jabber:iq:roster"
	nsDiscoItems = "http://jabber.org/protocol/disco#items"
	nsDiscoInfo  = "http://jabber.org/protocol/disco#info"
	nsMUC        = "http://jabber.org/protocol/muc"
	nsMUCUser    = "http://jabber.org/protocol/muc#user"
	nsVCard      = "vcard-temp"
	nsDelay      = "urn:xmpp:delay"
	nsLegacyDelay = "jabber:x:delay"
	nsPing       = "urn:xmpp:ping"
)

// Timestamp layouts for delay extensions: modern XEP-0203 and the legacy
// XEP-0091 form.
const (
	delayLayout       = "2006-01-02T15:04:05Z07:00"
	legacyDelayLayout = "20060102T15:04:05"
)
