package bcbiorun

// Version is reported in the CLI description and the header of every written document.
const Version = "0.3.1"
