// Package registry keeps the catalog of device plugins.
//
// A Registry validates plugins on registration, resolves an observed device
// to the plugin that scores it highest, and tracks the single active plugin.
// Resolution keeps the strictly highest score; equal scores keep the plugin
// registered first.
//
// A Watcher extends the catalog at runtime from a bundle directory. It
// combines filesystem notifications with a periodic rescan, so a bundle
// dropped into the directory is registered within one scan interval even
// where notifications are unavailable. BundleLoader reads YAML manifests
// that describe a vendor family as data.
package registry
